package websocket

import (
	"context"
	"sync"

	"github.com/satriahrh/buddy/adapters/tts"
	"github.com/satriahrh/buddy/domain/repositories"
)

// clientAudioSink streams synthesized audio to the client as binary frames,
// framed by audio_start and audio_end messages
type clientAudioSink struct {
	sender   messageSender
	playback *playbackTracker
	format   string

	mu   sync.Mutex
	acks map[string]<-chan bool
}

var (
	_ repositories.AudioSink = (*clientAudioSink)(nil)
	_ tts.PlaybackAwaiter    = (*clientAudioSink)(nil)
)

func newClientAudioSink(sender messageSender, playback *playbackTracker, format string) *clientAudioSink {
	return &clientAudioSink{
		sender:   sender,
		playback: playback,
		format:   format,
		acks:     make(map[string]<-chan bool),
	}
}

func (s *clientAudioSink) BeginPlayback(u repositories.Utterance) error {
	ack := s.playback.expect(u.ID)
	s.mu.Lock()
	s.acks[u.ID] = ack
	s.mu.Unlock()

	return s.sender.sendJSON(&AudioStartMessage{
		BaseMessage: newBase(MessageTypeAudioStart),
		NarrationID: u.ID,
		Format:      s.format,
		Text:        u.Text,
	})
}

func (s *clientAudioSink) WriteAudio(u repositories.Utterance, chunk []byte) error {
	return s.sender.sendBinary(chunk)
}

// AwaitPlayback marks the end of the audio and waits for the client to finish playing it
func (s *clientAudioSink) AwaitPlayback(ctx context.Context, u repositories.Utterance) error {
	if err := s.sender.sendJSON(&AudioEndMessage{
		BaseMessage: newBase(MessageTypeAudioEnd),
		NarrationID: u.ID,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	ack, ok := s.acks[u.ID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := s.playback.await(ctx, u.ID, ack)
	return err
}

func (s *clientAudioSink) EndPlayback(u repositories.Utterance, interrupted bool) {
	s.mu.Lock()
	delete(s.acks, u.ID)
	s.mu.Unlock()
	s.playback.forget(u.ID)

	if interrupted {
		s.sender.sendJSON(&CancelSpeechMessage{
			BaseMessage: newBase(MessageTypeCancelSpeech),
			NarrationID: u.ID,
		})
	}
}
