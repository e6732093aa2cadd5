package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

var (
	// ErrDeviceUnavailable is returned when the recognizer could not be started
	ErrDeviceUnavailable = errors.New("speech recognition device unavailable")
	// ErrRecognitionFault is reported when the recognizer fails while listening
	ErrRecognitionFault = errors.New("speech recognition fault")
	// ErrNotListening is returned when audio is fed while no recording is active
	ErrNotListening = errors.New("not listening")
)

// SpeechInputListener receives the notifications of a SpeechInputController.
// Methods are called without any controller lock held.
type SpeechInputListener interface {
	TranscriptChanged(transcript string)
	RecordingStateChanged(state entities.RecordingState)
	RecognitionFailed(err error)
}

// SpeechInputController owns the microphone capture lifecycle and the live
// transcript of the current recording
type SpeechInputController struct {
	recognizer repositories.SpeechRecognizer
	config     repositories.RecognitionConfig
	logger     *zap.Logger

	// opMu serializes Start and Stop so a stop fully settles before a start
	opMu sync.Mutex

	mu         sync.Mutex
	listener   SpeechInputListener
	state      entities.RecordingState
	stream     repositories.RecognitionStream
	done       chan struct{}
	generation uint64
	stopping   bool
	segments   []string
	interim    string
}

// NewSpeechInputController creates a speech input controller in the Idle state
func NewSpeechInputController(recognizer repositories.SpeechRecognizer, config repositories.RecognitionConfig, logger *zap.Logger) *SpeechInputController {
	if config.Language == "" {
		config.Language = "en-US"
	}
	return &SpeechInputController{
		recognizer: recognizer,
		config:     config,
		logger:     logger,
		state:      entities.RecordingIdle,
	}
}

// SetListener registers the receiver of transcript and state notifications
func (c *SpeechInputController) SetListener(listener SpeechInputListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// State returns the current recording state
func (c *SpeechInputController) State() entities.RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the live transcript of the current recording
func (c *SpeechInputController) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

// Start begins a new recording with an empty transcript. An active recording
// is stopped first. On failure the state is left unchanged and the returned
// error wraps ErrDeviceUnavailable.
func (c *SpeechInputController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == entities.RecordingListening {
		c.logger.Info("Stopping active recording before starting a new one")
		c.stopLocked(ctx)
	}

	c.mu.Lock()
	c.segments = nil
	c.interim = ""
	c.mu.Unlock()
	c.notifyTranscript("")

	stream, err := c.recognizer.StartRecognition(ctx, c.config)
	if err != nil {
		c.logger.Warn("Failed to start speech recognition", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.state = entities.RecordingListening
	c.stream = stream
	c.done = done
	c.stopping = false
	c.mu.Unlock()

	go c.pump(generation, stream, done)

	c.logger.Info("Recording started",
		zap.Uint64("generation", generation),
		zap.String("language", c.config.Language))
	c.notifyState(entities.RecordingListening)
	return nil
}

// Stop ends the current recording and returns its transcript. Stopping an
// idle controller is a no-op that returns an empty transcript.
func (c *SpeechInputController) Stop(ctx context.Context) string {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked(ctx)
}

// Close releases the microphone if a recording is active
func (c *SpeechInputController) Close(ctx context.Context) {
	c.Stop(ctx)
}

// FeedAudio forwards raw audio to the active recording when its engine is
// fed by the server
func (c *SpeechInputController) FeedAudio(data []byte) error {
	c.mu.Lock()
	stream := c.stream
	listening := c.state == entities.RecordingListening && !c.stopping
	c.mu.Unlock()

	if !listening || stream == nil {
		return ErrNotListening
	}

	feeder, ok := stream.(repositories.AudioFeeder)
	if !ok {
		return fmt.Errorf("recognition engine does not accept audio")
	}
	return feeder.FeedAudio(data)
}

func (c *SpeechInputController) stopLocked(ctx context.Context) string {
	c.mu.Lock()
	if c.state != entities.RecordingListening || c.stream == nil {
		c.state = entities.RecordingIdle
		c.mu.Unlock()
		return ""
	}
	stream := c.stream
	done := c.done
	generation := c.generation
	c.stopping = true
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		c.logger.Warn("Failed to stop speech recognition", zap.Error(err))
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Recognition did not settle before stop deadline",
			zap.Uint64("generation", generation),
			zap.Error(ctx.Err()))
	}

	c.mu.Lock()
	transcript := c.transcriptLocked()
	// late results of this stream are ignored from here on
	c.generation++
	c.state = entities.RecordingIdle
	c.stream = nil
	c.done = nil
	c.stopping = false
	c.mu.Unlock()

	c.logger.Info("Recording stopped",
		zap.Uint64("generation", generation),
		zap.Int("transcriptLength", len(transcript)))
	c.notifyState(entities.RecordingIdle)
	return transcript
}

func (c *SpeechInputController) pump(generation uint64, stream repositories.RecognitionStream, done chan struct{}) {
	defer close(done)

	for result := range stream.Results() {
		c.mu.Lock()
		if generation != c.generation {
			c.mu.Unlock()
			continue
		}
		if result.IsFinal {
			if text := strings.TrimSpace(result.Transcript); text != "" {
				c.segments = append(c.segments, text)
			}
			c.interim = ""
		} else {
			c.interim = strings.TrimSpace(result.Transcript)
		}
		transcript := c.transcriptLocked()
		c.mu.Unlock()

		c.notifyTranscript(transcript)
	}

	err := stream.Err()

	c.mu.Lock()
	current := generation == c.generation
	if !current || c.stopping {
		c.mu.Unlock()
		if err != nil {
			c.logger.Debug("Ignoring recognition error of a stopped stream", zap.Error(err))
		}
		return
	}
	if err == nil {
		c.mu.Unlock()
		c.logger.Info("Recognition ended by engine", zap.Uint64("generation", generation))
		return
	}

	c.generation++
	c.state = entities.RecordingIdle
	c.stream = nil
	c.done = nil
	c.segments = nil
	c.interim = ""
	c.mu.Unlock()

	c.logger.Warn("Speech recognition failed while listening",
		zap.Uint64("generation", generation),
		zap.Error(err))
	c.notifyTranscript("")
	c.notifyState(entities.RecordingError)
	c.notifyFault(fmt.Errorf("%w: %v", ErrRecognitionFault, err))
	c.notifyState(entities.RecordingIdle)
}

func (c *SpeechInputController) transcriptLocked() string {
	parts := c.segments
	if c.interim != "" {
		parts = append(parts[:len(parts):len(parts)], c.interim)
	}
	return strings.Join(parts, " ")
}

func (c *SpeechInputController) currentListener() SpeechInputListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func (c *SpeechInputController) notifyTranscript(transcript string) {
	if l := c.currentListener(); l != nil {
		l.TranscriptChanged(transcript)
	}
}

func (c *SpeechInputController) notifyState(state entities.RecordingState) {
	if l := c.currentListener(); l != nil {
		l.RecordingStateChanged(state)
	}
}

func (c *SpeechInputController) notifyFault(err error) {
	if l := c.currentListener(); l != nil {
		l.RecognitionFailed(err)
	}
}
