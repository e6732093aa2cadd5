package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/buddy/domain"
	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

// waitFor polls cond until it holds or a second has passed
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

type fakeStream struct {
	results     chan repositories.RecognitionResult
	finalOnStop string

	mu        sync.Mutex
	err       error
	stopped   bool
	audio     [][]byte
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan repositories.RecognitionResult, 16)}
}

func (s *fakeStream) Results() <-chan repositories.RecognitionResult { return s.results }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	final := s.finalOnStop
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		if final != "" {
			s.results <- repositories.RecognitionResult{Transcript: final, IsFinal: true}
		}
		close(s.results)
	})
	return nil
}

func (s *fakeStream) FeedAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, data)
	return nil
}

func (s *fakeStream) say(text string, final bool) {
	s.results <- repositories.RecognitionResult{Transcript: text, IsFinal: final}
}

func (s *fakeStream) fail(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.results)
	})
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeRecognizer struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
	configs []repositories.RecognitionConfig
}

func (r *fakeRecognizer) StartRecognition(ctx context.Context, config repositories.RecognitionConfig) (repositories.RecognitionStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, config)
	if r.err != nil {
		return nil, r.err
	}
	stream := newFakeStream()
	r.streams = append(r.streams, stream)
	return stream, nil
}

func (r *fakeRecognizer) last() *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.streams) == 0 {
		return nil
	}
	return r.streams[len(r.streams)-1]
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs)
}

type fakeSynth struct {
	duration time.Duration
	block    bool

	mu          sync.Mutex
	calls       []repositories.Utterance
	completed   []string
	interrupted []string
	active      int
	maxActive   int
}

func (f *fakeSynth) Speak(ctx context.Context, u repositories.Utterance) error {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	var finished <-chan time.Time
	if !f.block {
		finished = time.After(f.duration)
	}

	select {
	case <-finished:
		f.mu.Lock()
		f.completed = append(f.completed, u.Text)
		f.mu.Unlock()
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		f.interrupted = append(f.interrupted, u.Text)
		f.mu.Unlock()
		return ctx.Err()
	}
}

func (f *fakeSynth) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.calls))
	for _, u := range f.calls {
		texts = append(texts, u.Text)
	}
	return texts
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSynth) lastCall() repositories.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeSearcher struct {
	handler func(ctx context.Context, query string) (*domain.SearchAnswer, error)

	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (*domain.SearchAnswer, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.handler(ctx, query)
}

func (f *fakeSearcher) queryList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func answerWith(summary string, results ...entities.SearchResult) func(context.Context, string) (*domain.SearchAnswer, error) {
	return func(context.Context, string) (*domain.SearchAnswer, error) {
		return &domain.SearchAnswer{Summary: summary, Results: results}, nil
	}
}

var errNetwork = errors.New("connection refused")

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions []*entities.Session
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	copied.Messages = append([]entities.ChatMessage(nil), session.Messages...)
	r.sessions = append(r.sessions, &copied)
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, errors.New("session not found")
}

func (r *fakeSessionRepo) GetLastByClientID(ctx context.Context, clientID string) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sessions) - 1; i >= 0; i-- {
		if r.sessions[i].ClientID == clientID {
			copied := *r.sessions[i]
			copied.Messages = append([]entities.ChatMessage(nil), r.sessions[i].Messages...)
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) GetByClientID(ctx context.Context, clientID string, limit int) ([]*entities.Session, error) {
	return nil, nil
}

func (r *fakeSessionRepo) AddMessage(ctx context.Context, sessionID primitive.ObjectID, message entities.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == sessionID {
			s.AddMessage(message)
			return nil
		}
	}
	return errors.New("session not found")
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *entities.Session) error {
	return nil
}

func (r *fakeSessionRepo) ExpireSessions(ctx context.Context) error {
	return nil
}

func (r *fakeSessionRepo) all() []*entities.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.Session(nil), r.sessions...)
}
