package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/repositories"
)

const (
	// Time the client has to report that its recognition engine started
	recognitionStartTimeout = 10 * time.Second

	// Longest a narration may play before it is considered finished
	playbackTimeout = 2 * time.Minute

	recognitionBuffer = 64
)

var errClientClosed = errors.New("client connection closed")

// messageSender delivers protocol messages to the connected client
type messageSender interface {
	sendJSON(v interface{}) error
	sendBinary(data []byte) error
}

// playbackTracker matches narrations with the client's narration_ended reports
type playbackTracker struct {
	mu      sync.Mutex
	waiting map[string]chan bool
	closed  chan struct{}
	once    sync.Once
}

func newPlaybackTracker() *playbackTracker {
	return &playbackTracker{
		waiting: make(map[string]chan bool),
		closed:  make(chan struct{}),
	}
}

// expect registers a narration before it is sent to the client
func (p *playbackTracker) expect(id string) <-chan bool {
	ch := make(chan bool, 1)
	p.mu.Lock()
	p.waiting[id] = ch
	p.mu.Unlock()
	return ch
}

// finish reports that the client stopped playing narration id
func (p *playbackTracker) finish(id string, interrupted bool) bool {
	p.mu.Lock()
	ch, ok := p.waiting[id]
	delete(p.waiting, id)
	p.mu.Unlock()

	if ok {
		ch <- interrupted
	}
	return ok
}

func (p *playbackTracker) forget(id string) {
	p.mu.Lock()
	delete(p.waiting, id)
	p.mu.Unlock()
}

// await blocks until the client finished narration id, ctx is done or the
// connection closed
func (p *playbackTracker) await(ctx context.Context, id string, ack <-chan bool) (bool, error) {
	timer := time.NewTimer(playbackTimeout)
	defer timer.Stop()

	select {
	case interrupted := <-ack:
		return interrupted, nil
	case <-ctx.Done():
		p.forget(id)
		return true, ctx.Err()
	case <-timer.C:
		p.forget(id)
		return false, fmt.Errorf("no playback report for narration %s", id)
	case <-p.closed:
		return true, errClientClosed
	}
}

func (p *playbackTracker) close() {
	p.once.Do(func() { close(p.closed) })
}

// HostSynthesizer narrates with the speech synthesizer of the connected client
type HostSynthesizer struct {
	sender   messageSender
	playback *playbackTracker
	logger   *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*HostSynthesizer)(nil)

// Speak implements repositories.SpeechSynthesizer
func (h *HostSynthesizer) Speak(ctx context.Context, u repositories.Utterance) error {
	ack := h.playback.expect(u.ID)

	msg := &SpeakMessage{
		BaseMessage: newBase(MessageTypeSpeak),
		NarrationID: u.ID,
		Text:        u.Text,
		Lang:        u.Lang,
		Rate:        u.Rate,
		Pitch:       u.Pitch,
		Volume:      u.Volume,
	}
	if u.Voice != nil {
		msg.Voice = u.Voice.Name
	}
	if err := h.sender.sendJSON(msg); err != nil {
		h.playback.forget(u.ID)
		return fmt.Errorf("failed to send narration: %w", err)
	}

	interrupted, err := h.playback.await(ctx, u.ID, ack)
	if ctx.Err() != nil {
		h.sender.sendJSON(&CancelSpeechMessage{
			BaseMessage: newBase(MessageTypeCancelSpeech),
			NarrationID: u.ID,
		})
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	h.logger.Debug("Client narration finished",
		zap.String("narrationID", u.ID),
		zap.Bool("interrupted", interrupted))
	return nil
}

// speechRelay routes the client's recognition reports to the open streams
type speechRelay struct {
	sender messageSender
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]*hostStream
	closed  bool
	done    chan struct{}
}

func newSpeechRelay(sender messageSender, logger *zap.Logger) *speechRelay {
	return &speechRelay{
		sender:  sender,
		logger:  logger,
		streams: make(map[string]*hostStream),
		done:    make(chan struct{}),
	}
}

func (r *speechRelay) add(s *hostStream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClientClosed
	}
	r.streams[s.id] = s
	return nil
}

func (r *speechRelay) take(id string, remove bool) *hostStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.streams[id]
	if remove {
		delete(r.streams, id)
	}
	return s
}

// handle applies a recognition report of the client. It reports whether the
// message was a recognition report.
func (r *speechRelay) handle(msg interface{}) bool {
	switch m := msg.(type) {
	case *RecognitionStatusMessage:
		if m.Type == MessageTypeRecognitionStarted {
			if s := r.take(m.StreamID, false); s != nil {
				s.markStarted(nil)
			}
			return true
		}
		if s := r.take(m.StreamID, true); s != nil {
			s.end(nil)
		}
		return true

	case *RecognitionResultMessage:
		if s := r.take(m.StreamID, false); s != nil {
			s.deliver(repositories.RecognitionResult{Transcript: m.Transcript, IsFinal: m.IsFinal})
		} else {
			r.logger.Debug("Result for unknown recognition stream", zap.String("streamID", m.StreamID))
		}
		return true

	case *RecognitionErrorMessage:
		if s := r.take(m.StreamID, true); s != nil {
			s.fail(errors.New(m.Error))
		}
		return true
	}
	return false
}

func (r *speechRelay) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	streams := r.streams
	r.streams = make(map[string]*hostStream)
	r.mu.Unlock()

	for _, s := range streams {
		s.fail(errClientClosed)
	}
}

// HostRecognizer recognizes speech with the recognition engine of the connected client
type HostRecognizer struct {
	relay *speechRelay
}

var _ repositories.SpeechRecognizer = (*HostRecognizer)(nil)

// StartRecognition implements repositories.SpeechRecognizer. It returns once
// the client reports that its engine started, or with the reason it could not.
func (h *HostRecognizer) StartRecognition(ctx context.Context, config repositories.RecognitionConfig) (repositories.RecognitionStream, error) {
	s := &hostStream{
		id:      uuid.NewString(),
		relay:   h.relay,
		results: make(chan repositories.RecognitionResult, recognitionBuffer),
		started: make(chan error, 1),
	}
	if err := h.relay.add(s); err != nil {
		return nil, err
	}

	err := h.relay.sender.sendJSON(&StartRecognitionMessage{
		BaseMessage:    newBase(MessageTypeStartRecognition),
		StreamID:       s.id,
		Language:       config.Language,
		Continuous:     config.Continuous,
		InterimResults: config.InterimResults,
	})
	if err != nil {
		h.relay.take(s.id, true)
		return nil, fmt.Errorf("failed to request recognition: %w", err)
	}

	timer := time.NewTimer(recognitionStartTimeout)
	defer timer.Stop()

	select {
	case err := <-s.started:
		if err != nil {
			h.relay.take(s.id, true)
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		s.abandon()
		return nil, ctx.Err()
	case <-timer.C:
		s.abandon()
		return nil, errors.New("client did not start recognition")
	}
}

// hostStream is a recognition stream running in the client
type hostStream struct {
	id      string
	relay   *speechRelay
	results chan repositories.RecognitionResult
	started chan error

	mu          sync.Mutex
	isStarted   bool
	startReport bool
	ended       bool
	err         error
}

func (s *hostStream) Results() <-chan repositories.RecognitionResult { return s.results }

func (s *hostStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop asks the client to stop; the stream ends with its recognition_ended report
func (s *hostStream) Stop() error {
	err := s.relay.sender.sendJSON(&StopRecognitionMessage{
		BaseMessage: newBase(MessageTypeStopRecognition),
		StreamID:    s.id,
	})
	if err != nil {
		s.relay.take(s.id, true)
		s.end(nil)
	}
	return err
}

// abandon gives up on a stream whose start was not confirmed
func (s *hostStream) abandon() {
	s.relay.take(s.id, true)
	s.Stop()
	s.end(nil)
}

func (s *hostStream) markStarted(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startReport {
		return false
	}
	s.startReport = true
	s.isStarted = err == nil
	s.started <- err
	return true
}

func (s *hostStream) deliver(result repositories.RecognitionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || !s.isStarted {
		return
	}
	select {
	case s.results <- result:
	default:
		s.relay.logger.Warn("Recognition buffer full, dropping result", zap.String("streamID", s.id))
	}
}

// fail ends the stream with err, or refuses the start when it was not confirmed yet
func (s *hostStream) fail(err error) {
	if s.markStarted(err) {
		s.end(nil)
		return
	}
	s.end(err)
}

func (s *hostStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.results)
}
