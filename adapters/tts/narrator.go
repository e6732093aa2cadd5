package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/repositories"
)

// PlaybackAwaiter is implemented by sinks that can report when the listener
// has finished hearing an utterance. Without it a narration ends as soon as
// its audio has been delivered.
type PlaybackAwaiter interface {
	AwaitPlayback(ctx context.Context, u repositories.Utterance) error
}

// StreamingNarrator narrates utterances by streaming synthesized audio into a sink
type StreamingNarrator struct {
	tts    repositories.TextToSpeech
	sink   repositories.AudioSink
	logger *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*StreamingNarrator)(nil)

// NewStreamingNarrator creates a narrator writing the audio of tts into sink
func NewStreamingNarrator(tts repositories.TextToSpeech, sink repositories.AudioSink, logger *zap.Logger) *StreamingNarrator {
	return &StreamingNarrator{tts: tts, sink: sink, logger: logger}
}

// Speak implements repositories.SpeechSynthesizer
func (n *StreamingNarrator) Speak(ctx context.Context, u repositories.Utterance) error {
	req := repositories.SynthesisRequest{Text: u.Text, Speed: u.Rate}
	if u.Voice != nil {
		req.VoiceID = u.Voice.ID
	}

	chunks, err := n.tts.ConvertTextToSpeech(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if err := n.sink.BeginPlayback(u); err != nil {
		drain(chunks)
		return fmt.Errorf("failed to begin playback: %w", err)
	}

	chunkCount := 0
	for chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		if err := n.sink.WriteAudio(u, chunk); err != nil {
			n.sink.EndPlayback(u, true)
			drain(chunks)
			return fmt.Errorf("failed to write audio: %w", err)
		}
		chunkCount++
	}

	if ctx.Err() == nil {
		if awaiter, ok := n.sink.(PlaybackAwaiter); ok {
			if err := awaiter.AwaitPlayback(ctx, u); err != nil && ctx.Err() == nil {
				n.logger.Warn("Playback did not complete", zap.String("narrationID", u.ID), zap.Error(err))
			}
		}
	}

	interrupted := ctx.Err() != nil
	n.sink.EndPlayback(u, interrupted)
	n.logger.Debug("Narration streamed",
		zap.String("narrationID", u.ID),
		zap.Int("chunkCount", chunkCount),
		zap.Bool("interrupted", interrupted))

	if interrupted {
		drain(chunks)
		return ctx.Err()
	}
	return nil
}

// drain releases the producer of chunks in the background
func drain(chunks <-chan []byte) {
	go func() {
		for range chunks {
		}
	}()
}
