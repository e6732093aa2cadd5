package websocket

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/adapters/tts"
	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
	"github.com/satriahrh/buddy/internal/config"
	"github.com/satriahrh/buddy/usecase"
)

// SessionFactory builds the search session of a newly connected client. The
// returned release function is called once the session is closed.
type SessionFactory interface {
	NewSession(c *Client) (*usecase.SearchSession, func(), error)
}

// VoiceSource reports voice catalog changes to its subscribers
type VoiceSource interface {
	Subscribe(fn func([]entities.Voice)) func()
}

// SpeechSessionFactory builds sessions for one speech provider
type SpeechSessionFactory struct {
	Provider config.SpeechProvider
	Searcher repositories.SearchService
	// Archive stores the conversations; nil disables archiving
	Archive repositories.SessionRepository

	// Shared engines of the cloud and mock providers
	Recognizer   repositories.SpeechRecognizer
	TextToSpeech repositories.TextToSpeech
	Synthesizer  repositories.SpeechSynthesizer
	Voices       VoiceSource
	AudioFormat  string

	Recognition repositories.RecognitionConfig
	Profile     usecase.VoiceProfile
	Session     usecase.SessionConfig
	Logger      *zap.Logger
}

var _ SessionFactory = (*SpeechSessionFactory)(nil)

// NewSession implements SessionFactory
func (f *SpeechSessionFactory) NewSession(c *Client) (*usecase.SearchSession, func(), error) {
	logger := f.Logger.With(
		zap.String("clientID", c.clientID),
		zap.String("connectionID", c.id))

	var (
		recognizer repositories.SpeechRecognizer
		synth      repositories.SpeechSynthesizer
		voices     VoiceSource
	)

	switch f.Provider {
	case config.SpeechProviderHost:
		c.relay = newSpeechRelay(c, logger)
		recognizer = &HostRecognizer{relay: c.relay}
		synth = &HostSynthesizer{sender: c, playback: c.playback, logger: logger}

	case config.SpeechProviderCloud:
		if f.Recognizer == nil || f.TextToSpeech == nil {
			return nil, nil, fmt.Errorf("cloud speech provider is not configured")
		}
		recognizer = f.Recognizer
		sink := newClientAudioSink(c, c.playback, f.AudioFormat)
		synth = tts.NewStreamingNarrator(f.TextToSpeech, sink, logger)
		voices = f.Voices

	case config.SpeechProviderMock:
		if f.Recognizer == nil || f.Synthesizer == nil {
			return nil, nil, fmt.Errorf("mock speech provider is not configured")
		}
		recognizer = f.Recognizer
		synth = f.Synthesizer
		voices = f.Voices

	default:
		return nil, nil, fmt.Errorf("unknown speech provider %q", f.Provider)
	}

	recognition := f.Recognition
	if f.Provider == config.SpeechProviderHost {
		recognition.Continuous = true
		recognition.InterimResults = true
	}

	input := usecase.NewSpeechInputController(recognizer, recognition, logger)
	output := usecase.NewSpeechOutputController(synth, f.Profile, logger)

	var archive *usecase.ConversationArchive
	if f.Archive != nil {
		archive = usecase.NewConversationArchive(f.Archive, c.clientID, entities.SessionMetadata{
			Language:       recognition.Language,
			SpeechProvider: string(f.Provider),
		}, logger)
	}

	session := usecase.NewSearchSession(f.Searcher, input, output, archive, f.Session, logger)

	release := func() {}
	if voices != nil {
		release = voices.Subscribe(session.UpdateVoices)
	}
	return session, release, nil
}
