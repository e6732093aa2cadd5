package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/buddy/domain"
	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

type sessionFixture struct {
	session    *SearchSession
	searcher   *fakeSearcher
	recognizer *fakeRecognizer
	synth      *fakeSynth
}

func newTestSession(t *testing.T, config SessionConfig, handler func(context.Context, string) (*domain.SearchAnswer, error)) *sessionFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &sessionFixture{
		searcher:   &fakeSearcher{handler: handler},
		recognizer: &fakeRecognizer{},
		synth:      &fakeSynth{},
	}
	input := NewSpeechInputController(f.recognizer, repositories.RecognitionConfig{Continuous: true, InterimResults: true}, logger)
	output := NewSpeechOutputController(f.synth, DefaultVoiceProfile(), logger)
	f.session = NewSearchSession(f.searcher, input, output, nil, config, logger)

	t.Cleanup(func() { f.session.Close(context.Background()) })
	return f
}

// drain returns the events emitted so far, skipping narration events
func drain(s *SearchSession) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return events
			}
			if e.Type == EventNarrationStarted || e.Type == EventNarrationEnded {
				continue
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestSearchSession_TypedQuestionAnswered(t *testing.T) {
	results := []entities.SearchResult{
		{ID: "r1", Title: "Heaps", MediaType: entities.MediaTypeDocument, MediaLink: "https://x.edu/heaps.pdf"},
		{ID: "r2", Title: "Trees", MediaType: entities.MediaTypeArticle, MediaLink: "https://x.edu/trees"},
	}
	f := newTestSession(t, SessionConfig{}, answerWith("Heaps are trees.", results...))

	outcome := f.session.Ask(context.Background(), "what is a heap")
	if outcome != OutcomeAnswered {
		t.Fatalf("Expected outcome %s, got %s", OutcomeAnswered, outcome)
	}

	snapshot := f.session.Snapshot()
	if len(snapshot.History) != 2 {
		t.Fatalf("Expected 2 chat messages, got %d", len(snapshot.History))
	}
	if !snapshot.History[0].IsUser() || snapshot.History[0].Text != "what is a heap" {
		t.Errorf("Expected user question first, got %+v", snapshot.History[0])
	}
	if snapshot.History[1].Sender != entities.SenderAgent || snapshot.History[1].Text != "Heaps are trees." {
		t.Errorf("Expected agent summary second, got %+v", snapshot.History[1])
	}
	if len(snapshot.Results) != 2 || snapshot.Results[0].ID != "r1" {
		t.Errorf("Expected results to be replaced, got %+v", snapshot.Results)
	}
	if snapshot.Busy {
		t.Error("Expected session not to be busy")
	}

	f.session.output.wait()
	if texts := f.synth.spokenTexts(); len(texts) != 1 || texts[0] != "Heaps are trees." {
		t.Errorf("Expected the summary to be narrated, got %v", texts)
	}
}

func TestSearchSession_EventOrder(t *testing.T) {
	f := newTestSession(t, SessionConfig{SubmittedNoticeDuration: -1}, answerWith("Answer.", entities.SearchResult{ID: "r1"}))

	f.session.Ask(context.Background(), "question")
	events := drain(f.session)

	want := []EventType{
		EventChatAppended,
		EventBusyChanged,
		EventDraftUpdated,
		EventChatAppended,
		EventResultsReplaced,
		EventBusyChanged,
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], e.Type)
		}
	}
	if !events[1].Busy || events[5].Busy {
		t.Error("Expected busy to be raised then cleared")
	}
	if events[0].Message == nil || events[0].Message.Text != "question" {
		t.Errorf("Expected the question in the first event, got %+v", events[0].Message)
	}
}

func TestSearchSession_SearchFailure(t *testing.T) {
	previous := entities.SearchResult{ID: "old"}
	calls := 0
	f := newTestSession(t, SessionConfig{}, func(context.Context, string) (*domain.SearchAnswer, error) {
		calls++
		if calls == 1 {
			return &domain.SearchAnswer{Summary: "First.", Results: []entities.SearchResult{previous}}, nil
		}
		return nil, errNetwork
	})

	f.session.Ask(context.Background(), "first")
	outcome := f.session.Ask(context.Background(), "second")
	if outcome != OutcomeFailed {
		t.Fatalf("Expected outcome %s, got %s", OutcomeFailed, outcome)
	}

	snapshot := f.session.Snapshot()
	if len(snapshot.History) != 4 {
		t.Fatalf("Expected 4 chat messages, got %d", len(snapshot.History))
	}
	if last := snapshot.History[3]; last.Sender != entities.SenderAgent || last.Text != MessageSearchFailed {
		t.Errorf("Expected apology, got %+v", last)
	}
	if len(snapshot.Results) != 1 || snapshot.Results[0].ID != "old" {
		t.Errorf("Expected results to be kept on failure, got %+v", snapshot.Results)
	}
	if snapshot.Busy {
		t.Error("Expected session not to be busy")
	}

	f.session.output.wait()
	if call := f.synth.lastCall(); call.Text != MessageSearchFailed {
		t.Errorf("Expected apology to be narrated, got '%s'", call.Text)
	}
}

func TestSearchSession_RequestTimeout(t *testing.T) {
	f := newTestSession(t, SessionConfig{RequestTimeout: 20 * time.Millisecond}, func(ctx context.Context, _ string) (*domain.SearchAnswer, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if outcome := f.session.Ask(context.Background(), "slow"); outcome != OutcomeFailed {
		t.Fatalf("Expected outcome %s, got %s", OutcomeFailed, outcome)
	}
	history := f.session.Snapshot().History
	if history[len(history)-1].Text != MessageSearchFailed {
		t.Errorf("Expected apology after timeout, got '%s'", history[len(history)-1].Text)
	}
}

func TestSearchSession_EmptyResults(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("Nothing matched."))

	f.session.Ask(context.Background(), "obscure topic")

	snapshot := f.session.Snapshot()
	if snapshot.Results == nil || len(snapshot.Results) != 0 {
		t.Errorf("Expected an empty result set, got %+v", snapshot.Results)
	}
	if !snapshot.NoResultsNotice {
		t.Error("Expected the no-results notice after an answered question")
	}
}

func TestSearchSession_BlankQuestionIgnored(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("unused"))

	if outcome := f.session.Ask(context.Background(), "   "); outcome != OutcomeIgnored {
		t.Errorf("Expected outcome %s, got %s", OutcomeIgnored, outcome)
	}
	if f.session.SubmitQuestion("") {
		t.Error("Expected empty question to be rejected")
	}
	if len(f.searcher.queryList()) != 0 {
		t.Error("Expected no search requests")
	}
	snapshot := f.session.Snapshot()
	if len(snapshot.History) != 0 || snapshot.Busy {
		t.Errorf("Expected untouched session, got %+v", snapshot)
	}
	if snapshot.NoResultsNotice {
		t.Error("Expected no notice before any question")
	}
}

func TestSearchSession_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	f := newTestSession(t, SessionConfig{}, func(ctx context.Context, query string) (*domain.SearchAnswer, error) {
		if query == "first" {
			// ignores cancellation to answer after being superseded
			<-release
			return &domain.SearchAnswer{Summary: "Old answer.", Results: []entities.SearchResult{{ID: "old"}}}, nil
		}
		return &domain.SearchAnswer{Summary: "New answer.", Results: []entities.SearchResult{{ID: "new"}}}, nil
	})

	if !f.session.SubmitQuestion("first") {
		t.Fatal("Expected first question to be accepted")
	}
	waitFor(t, "first request", func() bool { return len(f.searcher.queryList()) == 1 })

	if outcome := f.session.Ask(context.Background(), "second"); outcome != OutcomeAnswered {
		t.Fatalf("Expected outcome %s, got %s", OutcomeAnswered, outcome)
	}

	close(release)
	f.session.wait()

	snapshot := f.session.Snapshot()
	texts := make([]string, 0, len(snapshot.History))
	for _, m := range snapshot.History {
		texts = append(texts, m.Text)
	}
	want := []string{"first", "second", "New answer."}
	if len(texts) != len(want) {
		t.Fatalf("Expected history %v, got %v", want, texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("History %d: expected '%s', got '%s'", i, want[i], texts[i])
		}
	}
	if len(snapshot.Results) != 1 || snapshot.Results[0].ID != "new" {
		t.Errorf("Expected results of the newest question, got %+v", snapshot.Results)
	}
	if snapshot.Busy {
		t.Error("Expected session not to be busy")
	}
}

func TestSearchSession_BusyFollowsNewestRequest(t *testing.T) {
	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})
	f := newTestSession(t, SessionConfig{}, func(ctx context.Context, query string) (*domain.SearchAnswer, error) {
		if query == "first" {
			<-releaseFirst
		} else {
			<-releaseSecond
		}
		return &domain.SearchAnswer{Summary: query + " answer."}, nil
	})

	f.session.SubmitQuestion("first")
	waitFor(t, "first request", func() bool { return len(f.searcher.queryList()) == 1 })
	f.session.SubmitQuestion("second")
	waitFor(t, "second request", func() bool { return len(f.searcher.queryList()) == 2 })

	close(releaseFirst)
	time.Sleep(20 * time.Millisecond)

	snapshot := f.session.Snapshot()
	if !snapshot.Busy {
		t.Error("Expected session to stay busy while the newest question is pending")
	}
	if len(snapshot.History) != 2 {
		t.Errorf("Expected stale answer to be discarded, got %d messages", len(snapshot.History))
	}

	close(releaseSecond)
	f.session.wait()
	if f.session.Snapshot().Busy {
		t.Error("Expected session not to be busy")
	}
}

func TestSearchSession_VoiceQuestion(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("Heaps are trees."))
	ctx := context.Background()

	if err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	f.session.output.wait()
	if call := f.synth.lastCall(); call.Text != MessageListening {
		t.Errorf("Expected listening prompt, got '%s'", call.Text)
	}

	stream := f.recognizer.last()
	stream.say("what is", true)
	stream.say("a heap", true)
	waitFor(t, "live draft", func() bool { return f.session.Snapshot().Draft == "what is a heap" })

	transcript, err := f.session.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if transcript != "what is a heap" {
		t.Errorf("Expected transcript 'what is a heap', got '%s'", transcript)
	}
	f.session.wait()

	queries := f.searcher.queryList()
	if len(queries) != 1 || queries[0] != "what is a heap" {
		t.Errorf("Expected exactly one search for the transcript, got %v", queries)
	}

	snapshot := f.session.Snapshot()
	if snapshot.RecordingState != entities.RecordingIdle {
		t.Errorf("Expected state %s, got %s", entities.RecordingIdle, snapshot.RecordingState)
	}
	if snapshot.Draft != "" {
		t.Errorf("Expected draft to be cleared, got '%s'", snapshot.Draft)
	}
	if len(snapshot.History) != 2 || snapshot.History[1].Text != "Heaps are trees." {
		t.Errorf("Expected the voice question to be answered, got %+v", snapshot.History)
	}

	if transcript, err := f.session.StopRecording(ctx); transcript != "" || err != nil {
		t.Errorf("Expected stopping an idle recording to be a no-op, got '%s', %v", transcript, err)
	}
}

func TestSearchSession_ToggleMic(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("Answer."))
	ctx := context.Background()

	f.session.ToggleMic(ctx)
	if f.session.Snapshot().RecordingState != entities.RecordingListening {
		t.Fatal("Expected toggle to start recording")
	}
	f.recognizer.last().say("toggle question", true)
	waitFor(t, "draft", func() bool { return f.session.Snapshot().Draft == "toggle question" })

	f.session.ToggleMic(ctx)
	f.session.wait()
	if queries := f.searcher.queryList(); len(queries) != 1 || queries[0] != "toggle question" {
		t.Errorf("Expected toggle to submit the transcript, got %v", queries)
	}
}

func TestSearchSession_EmptyUtterance(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("unused"))
	ctx := context.Background()

	if err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	_, err := f.session.StopRecording(ctx)
	if !errors.Is(err, ErrEmptyUtterance) {
		t.Errorf("Expected ErrEmptyUtterance, got %v", err)
	}
	f.session.output.wait()

	if len(f.searcher.queryList()) != 0 {
		t.Error("Expected nothing to be submitted")
	}
	if call := f.synth.lastCall(); call.Text != MessageEmptyUtterance {
		t.Errorf("Expected retry prompt, got '%s'", call.Text)
	}
	if len(f.session.Snapshot().History) != 0 {
		t.Error("Expected history to be untouched")
	}
}

func TestSearchSession_MicrophoneUnavailable(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("unused"))
	f.recognizer.err = errors.New("permission denied")

	err := f.session.StartRecording(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	f.session.output.wait()

	if call := f.synth.lastCall(); call.Text != MessageMicUnavailable {
		t.Errorf("Expected microphone apology, got '%s'", call.Text)
	}
	if f.session.Snapshot().RecordingState != entities.RecordingIdle {
		t.Error("Expected recording to stay idle")
	}
}

func TestSearchSession_RecognitionFault(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("unused"))

	if err := f.session.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	f.recognizer.last().say("half", false)
	f.recognizer.last().fail(errors.New("network"))

	waitFor(t, "fault apology", func() bool {
		for _, text := range f.synth.spokenTexts() {
			if text == MessageRecognitionFault {
				return true
			}
		}
		return false
	})

	snapshot := f.session.Snapshot()
	if snapshot.RecordingState != entities.RecordingIdle {
		t.Errorf("Expected state %s, got %s", entities.RecordingIdle, snapshot.RecordingState)
	}
	if snapshot.Draft != "" {
		t.Errorf("Expected draft to be discarded, got '%s'", snapshot.Draft)
	}
	if len(f.searcher.queryList()) != 0 {
		t.Error("Expected nothing to be submitted")
	}
}

func TestSearchSession_AudioDisabled(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("Silent answer."))

	f.session.SetAudioEnabled(false)
	if outcome := f.session.Ask(context.Background(), "question"); outcome != OutcomeAnswered {
		t.Fatalf("Expected outcome %s, got %s", OutcomeAnswered, outcome)
	}
	f.session.output.wait()

	if f.synth.callCount() != 0 {
		t.Errorf("Expected no narration while audio is disabled, got %v", f.synth.spokenTexts())
	}
	if f.session.Snapshot().Preference.AudioEnabled {
		t.Error("Expected audio preference to be disabled")
	}

	f.session.ToggleAudio()
	if !f.session.Snapshot().Preference.AudioEnabled {
		t.Error("Expected toggle to enable audio")
	}
}

func TestSearchSession_SelectResult(t *testing.T) {
	first := []entities.SearchResult{
		{ID: "r1", Title: "Heaps", Summary: "Priority queues.", MediaType: entities.MediaTypeImage, MediaLink: "https://x.edu/heap.png"},
		{ID: "r2", Title: "Trees"},
	}
	calls := 0
	f := newTestSession(t, SessionConfig{}, func(context.Context, string) (*domain.SearchAnswer, error) {
		calls++
		if calls == 1 {
			return &domain.SearchAnswer{Summary: "One.", Results: first}, nil
		}
		return &domain.SearchAnswer{Summary: "Two.", Results: []entities.SearchResult{{ID: "r3"}}}, nil
	})

	f.session.Ask(context.Background(), "first")
	drain(f.session)

	preview, err := f.session.SelectResult("r1")
	if err != nil {
		t.Fatalf("SelectResult failed: %v", err)
	}
	if preview.Mode != PreviewImage {
		t.Errorf("Expected image preview, got %s", preview.Mode)
	}

	events := drain(f.session)
	if len(events) != 1 || events[0].Type != EventInspectionChanged {
		t.Fatalf("Expected one inspection event, got %+v", events)
	}
	if events[0].Announcement != "You selected: Heaps. Priority queues...." {
		t.Errorf("Unexpected announcement: %s", events[0].Announcement)
	}

	if _, err := f.session.SelectResult("missing"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound, got %v", err)
	}
	if snapshot := f.session.Snapshot(); snapshot.Inspected == nil || snapshot.Inspected.ID != "r1" {
		t.Errorf("Expected r1 to stay inspected, got %+v", snapshot.Inspected)
	}

	f.session.Ask(context.Background(), "second")
	if snapshot := f.session.Snapshot(); snapshot.Inspected != nil {
		t.Errorf("Expected inspection to close when the result disappears, got %+v", snapshot.Inspected)
	}
}

func TestSearchSession_DismissResult(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("One.", entities.SearchResult{ID: "r1"}))

	f.session.Ask(context.Background(), "first")
	if _, err := f.session.SelectResult("r1"); err != nil {
		t.Fatalf("SelectResult failed: %v", err)
	}
	f.session.DismissResult()

	snapshot := f.session.Snapshot()
	if snapshot.Inspected != nil || snapshot.Preview != nil {
		t.Errorf("Expected nothing inspected, got %+v", snapshot.Inspected)
	}
}

func TestSearchSession_Draft(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, answerWith("Answer."))

	f.session.SetDraft("typed question")
	if f.session.Snapshot().Draft != "typed question" {
		t.Error("Expected draft to be stored")
	}
	if !f.session.SubmitDraft() {
		t.Fatal("Expected draft to be submitted")
	}
	f.session.wait()

	if queries := f.searcher.queryList(); len(queries) != 1 || queries[0] != "typed question" {
		t.Errorf("Expected draft to be searched, got %v", queries)
	}
	if f.session.Snapshot().Draft != "" {
		t.Error("Expected draft to be cleared after submit")
	}
}

func TestSearchSession_SubmittedNotice(t *testing.T) {
	f := newTestSession(t, SessionConfig{SubmittedNoticeDuration: 200 * time.Millisecond}, answerWith("Answer."))

	f.session.Ask(context.Background(), "question")
	if !f.session.Snapshot().JustSubmitted {
		t.Error("Expected the submitted notice right after submitting")
	}
	waitFor(t, "notice to clear", func() bool { return !f.session.Snapshot().JustSubmitted })
}

func TestSearchSession_Close(t *testing.T) {
	f := newTestSession(t, SessionConfig{}, func(ctx context.Context, _ string) (*domain.SearchAnswer, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if !f.session.SubmitQuestion("pending") {
		t.Fatal("Expected question to be accepted")
	}
	waitFor(t, "request", func() bool { return len(f.searcher.queryList()) == 1 })

	done := make(chan struct{})
	go func() {
		f.session.Close(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the pending request")
	}

	if f.session.SubmitQuestion("after close") {
		t.Error("Expected questions to be rejected after close")
	}

	for range f.session.Events() {
	}
	history := f.session.Snapshot().History
	if len(history) != 1 {
		t.Errorf("Expected the cancelled request not to be answered, got %+v", history)
	}
}
