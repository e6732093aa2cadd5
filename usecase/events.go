package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
)

// EventType identifies a session event
type EventType string

const (
	EventTranscriptUpdated     EventType = "transcript_updated"
	EventDraftUpdated          EventType = "draft_updated"
	EventRecordingStateChanged EventType = "recording_state_changed"
	EventRecognitionFault      EventType = "recognition_fault"
	EventChatAppended          EventType = "chat_appended"
	EventBusyChanged           EventType = "busy_changed"
	EventResultsReplaced       EventType = "results_replaced"
	EventInspectionChanged     EventType = "inspection_changed"
	EventAudioPreference       EventType = "audio_preference_changed"
	EventSubmittedNotice       EventType = "submitted_notice"
	EventNarrationStarted      EventType = "narration_started"
	EventNarrationEnded        EventType = "narration_ended"
)

// Event is a state change of a session. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Transcript     string                    `json:"transcript,omitempty"`
	RecordingState entities.RecordingState   `json:"recording_state,omitempty"`
	Message        *entities.ChatMessage     `json:"message,omitempty"`
	Busy           bool                      `json:"busy,omitempty"`
	Results        []entities.SearchResult   `json:"results,omitempty"`
	Inspected      *entities.SearchResult    `json:"inspected,omitempty"`
	Preview        *Preview                  `json:"preview,omitempty"`
	Announcement   string                    `json:"announcement,omitempty"`
	Preference     *entities.VoicePreference `json:"preference,omitempty"`
	JustSubmitted  bool                      `json:"just_submitted,omitempty"`
	NarrationID    string                    `json:"narration_id,omitempty"`
	Text           string                    `json:"text,omitempty"`
	Interrupted    bool                      `json:"interrupted,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

const defaultEventBuffer = 256

// eventStream fans session events out on a buffered channel. Events are
// dropped with a warning when the consumer falls behind.
type eventStream struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
	logger *zap.Logger
}

func newEventStream(size int, logger *zap.Logger) *eventStream {
	if size <= 0 {
		size = defaultEventBuffer
	}
	return &eventStream{
		ch:     make(chan Event, size),
		logger: logger,
	}
}

func (s *eventStream) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- event:
	default:
		s.logger.Warn("Event channel full, dropping event", zap.String("eventType", string(event.Type)))
	}
}

func (s *eventStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
