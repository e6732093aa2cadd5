package repositories

import (
	"context"

	"github.com/satriahrh/buddy/domain/entities"
)

// Utterance is a single narration request
type Utterance struct {
	ID   string
	Text string
	// Voice is nil when the engine should use its default voice
	Voice  *entities.Voice
	Lang   string
	Rate   float64
	Pitch  float64
	Volume float64
}

// SpeechSynthesizer narrates utterances
type SpeechSynthesizer interface {
	// Speak narrates u and returns once it finished playing or ctx is done.
	// Cancelling ctx must silence the utterance.
	Speak(ctx context.Context, u Utterance) error
}

// VoiceCatalog lists the voices a synthesizer offers
type VoiceCatalog interface {
	Voices(ctx context.Context) ([]entities.Voice, error)
}

// SynthesisRequest is a request to a streaming text-to-speech service
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Speed   float64
}

// TextToSpeech converts text to a stream of encoded audio chunks
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, req SynthesisRequest) (<-chan []byte, error)
}

// AudioSink plays synthesized audio chunks
type AudioSink interface {
	BeginPlayback(u Utterance) error
	WriteAudio(u Utterance, chunk []byte) error
	// EndPlayback finishes the utterance; interrupted is true when it was cut short
	EndPlayback(u Utterance, interrupted bool)
}
