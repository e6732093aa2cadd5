package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

// bytes of 16 kHz 16-bit mono audio per recognized word
const bytesPerWord = 8000

var defaultScript = "what resources explain binary search trees"

// MockRecognizer pretends to recognize a scripted question. One more word of
// the script is heard for every bytesPerWord of audio fed; stopping the
// recording finalizes what was heard.
type MockRecognizer struct {
	script string
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*MockRecognizer)(nil)

// NewMockRecognizer creates a mock recognizer. An empty script uses a default question.
func NewMockRecognizer(script string, logger *zap.Logger) *MockRecognizer {
	if strings.TrimSpace(script) == "" {
		script = defaultScript
	}
	return &MockRecognizer{script: script, logger: logger}
}

// StartRecognition implements repositories.SpeechRecognizer
func (m *MockRecognizer) StartRecognition(ctx context.Context, config repositories.RecognitionConfig) (repositories.RecognitionStream, error) {
	m.logger.Info("Starting mock recognition",
		zap.String("language", config.Language),
		zap.Bool("interimResults", config.InterimResults))

	return &mockStream{
		words:   strings.Fields(m.script),
		interim: config.InterimResults,
		results: make(chan repositories.RecognitionResult, 64),
		logger:  m.logger,
	}, nil
}

type mockStream struct {
	words   []string
	interim bool
	results chan repositories.RecognitionResult
	logger  *zap.Logger

	mu       sync.Mutex
	received int
	heard    int
	stopped  bool
}

func (s *mockStream) Results() <-chan repositories.RecognitionResult { return s.results }

func (s *mockStream) Err() error { return nil }

// FeedAudio implements repositories.AudioFeeder
func (s *mockStream) FeedAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	s.received += len(data)
	heard := s.received / bytesPerWord
	if heard > len(s.words) {
		heard = len(s.words)
	}
	if heard == s.heard {
		return nil
	}
	s.heard = heard

	s.logger.Debug("Processing mock audio chunk",
		zap.Int("size", len(data)),
		zap.Int("totalBytes", s.received))
	if s.interim {
		s.results <- repositories.RecognitionResult{Transcript: strings.Join(s.words[:heard], " ")}
	}
	return nil
}

func (s *mockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	if s.heard > 0 {
		transcript := strings.Join(s.words[:s.heard], " ")
		s.results <- repositories.RecognitionResult{Transcript: transcript, IsFinal: true}
		s.logger.Info("Mock recognition finished", zap.String("transcript", transcript))
	}
	close(s.results)
	return nil
}

// MockSynthesizer pretends to narrate, taking a fixed time per word
type MockSynthesizer struct {
	perWord time.Duration
	logger  *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*MockSynthesizer)(nil)

// NewMockSynthesizer creates a mock synthesizer
func NewMockSynthesizer(perWord time.Duration, logger *zap.Logger) *MockSynthesizer {
	return &MockSynthesizer{perWord: perWord, logger: logger}
}

// Speak implements repositories.SpeechSynthesizer
func (m *MockSynthesizer) Speak(ctx context.Context, u repositories.Utterance) error {
	words := len(strings.Fields(u.Text))
	duration := time.Duration(float64(m.perWord) * float64(words) / rateOrOne(u.Rate))

	m.logger.Info("Processing text-to-speech",
		zap.String("narrationID", u.ID),
		zap.String("text", u.Text),
		zap.Duration("duration", duration))

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func rateOrOne(rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return rate
}

// MockVoiceCatalog is a fixed voice catalog
type MockVoiceCatalog struct {
	voices []entities.Voice
}

var _ repositories.VoiceCatalog = (*MockVoiceCatalog)(nil)

// NewMockVoiceCatalog creates a catalog of voices, or a small default catalog
func NewMockVoiceCatalog(voices ...entities.Voice) *MockVoiceCatalog {
	if len(voices) == 0 {
		voices = []entities.Voice{
			{Name: "Google US English", Lang: "en-US", Default: true},
			{Name: "Google UK English Female", Lang: "en-GB"},
			{Name: "Google UK English Male", Lang: "en-GB"},
		}
	}
	return &MockVoiceCatalog{voices: voices}
}

// Voices implements repositories.VoiceCatalog
func (c *MockVoiceCatalog) Voices(ctx context.Context) ([]entities.Voice, error) {
	return append([]entities.Voice(nil), c.voices...), nil
}
