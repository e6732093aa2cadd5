package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

// Narrated texts of the session
const (
	MessageSearchFailed     = "I'm having trouble connecting to the search service. Please try again later."
	MessageListening        = "I'm listening. Please ask your question."
	MessageMicUnavailable   = "I couldn't access your microphone. Please check your browser permissions."
	MessageRecognitionFault = "I had trouble hearing you. Please try again."
	MessageEmptyUtterance   = "I didn't catch that. Please try speaking again."
)

const (
	defaultRequestTimeout          = 30 * time.Second
	defaultSubmittedNoticeDuration = 3 * time.Second
)

// ErrEmptyUtterance is returned when a recording stops without any speech
var ErrEmptyUtterance = errors.New("no speech captured")

// SubmitOutcome is how a submitted question ended
type SubmitOutcome string

const (
	OutcomeIgnored  SubmitOutcome = "ignored"
	OutcomeAnswered SubmitOutcome = "answered"
	OutcomeFailed   SubmitOutcome = "failed"
	OutcomeStale    SubmitOutcome = "stale"
)

// SessionConfig tunes a SearchSession
type SessionConfig struct {
	RequestTimeout          time.Duration
	SubmittedNoticeDuration time.Duration
	EventBuffer             int
}

// SessionSnapshot is the full observable state of a session
type SessionSnapshot struct {
	History         []entities.ChatMessage   `json:"history"`
	Results         []entities.SearchResult  `json:"results"`
	Busy            bool                     `json:"busy"`
	RecordingState  entities.RecordingState  `json:"recording_state"`
	Transcript      string                   `json:"transcript"`
	Draft           string                   `json:"draft"`
	Preference      entities.VoicePreference `json:"preference"`
	Inspected       *entities.SearchResult   `json:"inspected,omitempty"`
	Preview         *Preview                 `json:"preview,omitempty"`
	JustSubmitted   bool                     `json:"just_submitted"`
	NoResultsNotice bool                     `json:"no_results_notice"`
}

// SearchSession is one conversation: it owns the chat history and the result
// set, submits questions to the search service and coordinates the speech
// controllers around every turn
type SearchSession struct {
	searcher  repositories.SearchService
	input     *SpeechInputController
	output    *SpeechOutputController
	inspector *ResultInspector
	archive   *ConversationArchive
	config    SessionConfig
	logger    *zap.Logger
	events    *eventStream
	now       func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu            sync.Mutex
	history       []entities.ChatMessage
	results       []entities.SearchResult
	busy          bool
	draft         string
	generation    uint64
	cancelRequest context.CancelFunc
	justSubmitted bool
	noticeSeq     uint64
	noticeTimer   *time.Timer
	closed        bool
	wg            sync.WaitGroup
}

// NewSearchSession wires a session to its speech controllers. archive may be
// nil when conversations are not archived.
func NewSearchSession(
	searcher repositories.SearchService,
	input *SpeechInputController,
	output *SpeechOutputController,
	archive *ConversationArchive,
	config SessionConfig,
	logger *zap.Logger,
) *SearchSession {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.SubmittedNoticeDuration == 0 {
		config.SubmittedNoticeDuration = defaultSubmittedNoticeDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SearchSession{
		searcher:   searcher,
		input:      input,
		output:     output,
		inspector:  NewResultInspector(),
		archive:    archive,
		config:     config,
		logger:     logger,
		events:     newEventStream(config.EventBuffer, logger),
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		history:    make([]entities.ChatMessage, 0),
		results:    make([]entities.SearchResult, 0),
	}

	input.SetListener(s)
	output.SetListener(s)
	if archive != nil {
		archive.Start()
	}
	return s
}

// Events returns the session event stream. It is closed by Close.
func (s *SearchSession) Events() <-chan Event {
	return s.events.ch
}

// Ask submits text and waits for the turn to complete. Blank text is ignored.
func (s *SearchSession) Ask(ctx context.Context, text string) SubmitOutcome {
	t, ok := s.beginTurn(ctx, text)
	if !ok {
		return OutcomeIgnored
	}
	defer s.wg.Done()
	return s.completeTurn(t)
}

// SubmitQuestion submits text without waiting for the answer and reports
// whether the question was accepted
func (s *SearchSession) SubmitQuestion(text string) bool {
	t, ok := s.beginTurn(s.baseCtx, text)
	if !ok {
		return false
	}

	go func() {
		defer s.wg.Done()
		s.completeTurn(t)
	}()
	return true
}

// SubmitDraft submits the current draft question
func (s *SearchSession) SubmitDraft() bool {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	return s.SubmitQuestion(draft)
}

// SetDraft replaces the draft question with typed text
func (s *SearchSession) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	s.events.emit(Event{Type: EventDraftUpdated, Text: text})
}

// StartRecording starts capturing a spoken question. When the microphone
// cannot be acquired the apology is narrated and the error returned.
func (s *SearchSession) StartRecording(ctx context.Context) error {
	if err := s.input.Start(ctx); err != nil {
		s.output.Speak(MessageMicUnavailable)
		return err
	}
	s.output.Speak(MessageListening)
	return nil
}

// StopRecording stops capturing and submits the transcript. An empty
// transcript narrates a retry prompt and returns ErrEmptyUtterance.
func (s *SearchSession) StopRecording(ctx context.Context) (string, error) {
	if s.input.State() != entities.RecordingListening {
		return "", nil
	}

	transcript := s.input.Stop(ctx)
	if strings.TrimSpace(transcript) == "" {
		s.logger.Info("Recording stopped without speech")
		s.output.Speak(MessageEmptyUtterance)
		return "", ErrEmptyUtterance
	}

	s.SubmitQuestion(transcript)
	return transcript, nil
}

// ToggleMic starts a recording when idle and stops and submits it otherwise
func (s *SearchSession) ToggleMic(ctx context.Context) {
	if s.input.State() == entities.RecordingListening {
		s.StopRecording(ctx)
		return
	}
	s.StartRecording(ctx)
}

// FeedAudio forwards microphone audio to the active recording
func (s *SearchSession) FeedAudio(data []byte) error {
	return s.input.FeedAudio(data)
}

// SetAudioEnabled changes the narration preference
func (s *SearchSession) SetAudioEnabled(enabled bool) {
	s.output.SetEnabled(enabled)
}

// ToggleAudio flips the narration preference
func (s *SearchSession) ToggleAudio() {
	s.output.SetEnabled(!s.output.Enabled())
}

// UpdateVoices hands a (re)loaded voice catalog to the narration controller
func (s *SearchSession) UpdateVoices(voices []entities.Voice) {
	s.output.UpdateVoices(voices)
}

// SelectResult inspects the result with id from the current result set
func (s *SearchSession) SelectResult(id string) (Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := entities.FindResult(s.results, id)
	if !ok {
		return Preview{}, ErrResultNotFound
	}
	s.inspector.Select(result)
	preview := PreviewStrategy(result)

	s.events.emit(Event{
		Type:         EventInspectionChanged,
		Inspected:    &result,
		Preview:      &preview,
		Announcement: SelectionAnnouncement(result),
	})
	return preview, nil
}

// DismissResult closes the inspected result
func (s *SearchSession) DismissResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector.Dismiss()
	s.events.emit(Event{Type: EventInspectionChanged})
}

// Snapshot returns the current state of the session
func (s *SearchSession) Snapshot() SessionSnapshot {
	recording := s.input.State()
	transcript := s.input.Transcript()
	preference := s.output.Preference()

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := SessionSnapshot{
		History:         append([]entities.ChatMessage(nil), s.history...),
		Results:         append([]entities.SearchResult{}, s.results...),
		Busy:            s.busy,
		RecordingState:  recording,
		Transcript:      transcript,
		Draft:           s.draft,
		Preference:      preference,
		JustSubmitted:   s.justSubmitted,
		NoResultsNotice: len(s.results) == 0 && !s.busy && len(s.history) > 0,
	}
	if inspected, ok := s.inspector.Inspected(); ok {
		preview := PreviewStrategy(inspected)
		snapshot.Inspected = &inspected
		snapshot.Preview = &preview
	}
	return snapshot
}

// Close cancels the in-flight request, timers and narration, releases the
// microphone and waits for background work to finish
func (s *SearchSession) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelRequest != nil {
		s.cancelRequest()
		s.cancelRequest = nil
	}
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	s.mu.Unlock()

	s.baseCancel()
	s.input.Close(ctx)
	s.output.Close()
	s.wg.Wait()
	if s.archive != nil {
		s.archive.Stop()
	}
	s.events.close()

	s.logger.Info("Search session closed")
}

type turn struct {
	generation uint64
	question   string
	ctx        context.Context
	cancel     context.CancelFunc
}

// beginTurn records the question and marks the session busy. On success the
// caller owns one count of s.wg and must call completeTurn.
func (s *SearchSession) beginTurn(ctx context.Context, text string) (turn, bool) {
	if strings.TrimSpace(text) == "" {
		return turn{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return turn{}, false
	}

	message := entities.NewUserMessage(text, s.now())
	s.appendLocked(message)

	// a newer question supersedes the one in flight
	if s.cancelRequest != nil {
		s.cancelRequest()
	}
	s.generation++

	reqCtx, cancel := context.WithTimeout(s.baseCtx, s.config.RequestTimeout)
	stop := context.AfterFunc(ctx, cancel)
	s.cancelRequest = cancel

	s.busy = true
	s.events.emit(Event{Type: EventBusyChanged, Busy: true})
	s.draft = ""
	s.events.emit(Event{Type: EventDraftUpdated})
	s.markSubmittedLocked()

	s.wg.Add(1)
	s.logger.Info("Question submitted",
		zap.Uint64("generation", s.generation),
		zap.String("question", text))

	return turn{
		generation: s.generation,
		question:   text,
		ctx:        reqCtx,
		cancel: func() {
			stop()
			cancel()
		},
	}, true
}

func (s *SearchSession) completeTurn(t turn) SubmitOutcome {
	answer, err := s.searcher.Search(t.ctx, t.question)
	t.cancel()

	s.mu.Lock()
	if t.generation != s.generation || s.closed {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale search response",
			zap.Uint64("generation", t.generation),
			zap.Error(err))
		return OutcomeStale
	}

	s.busy = false
	s.cancelRequest = nil

	if err == nil && answer == nil {
		err = errors.New("empty search response")
	}
	if err != nil {
		s.appendLocked(entities.NewAgentMessage(MessageSearchFailed, s.now()))
		s.events.emit(Event{Type: EventBusyChanged, Busy: false})
		s.mu.Unlock()

		s.logger.Warn("Search request failed",
			zap.Uint64("generation", t.generation),
			zap.Error(err))
		s.output.Speak(MessageSearchFailed)
		return OutcomeFailed
	}

	results := append([]entities.SearchResult{}, answer.Results...)
	s.appendLocked(entities.NewAgentMessage(answer.Summary, s.now()))
	s.results = results
	s.events.emit(Event{Type: EventResultsReplaced, Results: results})
	if s.inspector.Reconcile(results) {
		s.events.emit(Event{Type: EventInspectionChanged})
	}
	s.events.emit(Event{Type: EventBusyChanged, Busy: false})
	s.mu.Unlock()

	s.logger.Info("Search answered",
		zap.Uint64("generation", t.generation),
		zap.Int("resultCount", len(results)))
	s.output.Speak(answer.Summary)
	return OutcomeAnswered
}

func (s *SearchSession) appendLocked(message entities.ChatMessage) {
	s.history = append(s.history, message)
	s.events.emit(Event{Type: EventChatAppended, Message: &message})
	if s.archive != nil {
		s.archive.Record(message)
	}
}

func (s *SearchSession) markSubmittedLocked() {
	if s.config.SubmittedNoticeDuration < 0 {
		return
	}
	s.noticeSeq++
	seq := s.noticeSeq
	s.justSubmitted = true
	s.events.emit(Event{Type: EventSubmittedNotice, JustSubmitted: true})

	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
	}
	s.noticeTimer = time.AfterFunc(s.config.SubmittedNoticeDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || seq != s.noticeSeq {
			return
		}
		s.justSubmitted = false
		s.noticeTimer = nil
		s.events.emit(Event{Type: EventSubmittedNotice, JustSubmitted: false})
	})
}

// TranscriptChanged implements SpeechInputListener
func (s *SearchSession) TranscriptChanged(transcript string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = transcript
	s.events.emit(Event{Type: EventTranscriptUpdated, Transcript: transcript})
}

// RecordingStateChanged implements SpeechInputListener
func (s *SearchSession) RecordingStateChanged(state entities.RecordingState) {
	s.events.emit(Event{Type: EventRecordingStateChanged, RecordingState: state})
}

// RecognitionFailed implements SpeechInputListener
func (s *SearchSession) RecognitionFailed(err error) {
	s.events.emit(Event{Type: EventRecognitionFault, Error: err.Error()})
	s.output.Speak(MessageRecognitionFault)
}

// NarrationStarted implements NarrationListener
func (s *SearchSession) NarrationStarted(u repositories.Utterance) {
	s.events.emit(Event{Type: EventNarrationStarted, NarrationID: u.ID, Text: u.Text})
}

// NarrationEnded implements NarrationListener
func (s *SearchSession) NarrationEnded(u repositories.Utterance, interrupted bool) {
	s.events.emit(Event{Type: EventNarrationEnded, NarrationID: u.ID, Interrupted: interrupted})
}

// PreferenceChanged implements NarrationListener
func (s *SearchSession) PreferenceChanged(pref entities.VoicePreference) {
	s.events.emit(Event{Type: EventAudioPreference, Preference: &pref})
}

// wait blocks until submitted questions have completed
func (s *SearchSession) wait() {
	s.wg.Wait()
}
