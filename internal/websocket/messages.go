package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client to server message types
const (
	MessageTypePing           MessageType = "ping"
	MessageTypeToggleMic      MessageType = "toggle_mic"
	MessageTypeStartRecording MessageType = "start_recording"
	MessageTypeStopRecording  MessageType = "stop_recording"
	MessageTypeSubmitQuestion MessageType = "submit_question"
	MessageTypeUpdateDraft    MessageType = "update_draft"
	MessageTypeToggleAudio    MessageType = "toggle_audio"
	MessageTypeSetAudio       MessageType = "set_audio"
	MessageTypeSelectResult   MessageType = "select_result"
	MessageTypeDismissResult  MessageType = "dismiss_result"
	MessageTypeGetState       MessageType = "get_state"

	// Reports of the client's own speech engines, used by the host provider
	MessageTypeRecognitionStarted MessageType = "recognition_started"
	MessageTypeRecognitionResult  MessageType = "recognition_result"
	MessageTypeRecognitionError   MessageType = "recognition_error"
	MessageTypeRecognitionEnded   MessageType = "recognition_ended"
	MessageTypeVoicesChanged      MessageType = "voices_changed"
	MessageTypeNarrationEnded     MessageType = "narration_ended"
)

// Server to client message types
const (
	MessageTypePong             MessageType = "pong"
	MessageTypeError            MessageType = "error"
	MessageTypeState            MessageType = "state"
	MessageTypeEvent            MessageType = "event"
	MessageTypeStartRecognition MessageType = "start_recognition"
	MessageTypeStopRecognition  MessageType = "stop_recognition"
	MessageTypeSpeak            MessageType = "speak"
	MessageTypeCancelSpeech     MessageType = "cancel_speech"
	MessageTypeAudioStart       MessageType = "audio_start"
	MessageTypeAudioEnd         MessageType = "audio_end"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// ControlMessage is a client command without arguments
type ControlMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// SubmitQuestionMessage submits a typed question. Empty text submits the draft.
type SubmitQuestionMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// UpdateDraftMessage replaces the draft question
type UpdateDraftMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// SetAudioMessage sets the narration preference
type SetAudioMessage struct {
	BaseMessage
	Enabled *bool `json:"enabled"`
}

// SelectResultMessage inspects a result of the current result set
type SelectResultMessage struct {
	BaseMessage
	ResultID string `json:"result_id"`
}

// RecognitionStatusMessage reports that a recognition stream started or ended
type RecognitionStatusMessage struct {
	BaseMessage
	StreamID string `json:"stream_id"`
}

// RecognitionResultMessage carries a result of the client's recognition engine
type RecognitionResultMessage struct {
	BaseMessage
	StreamID   string `json:"stream_id"`
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// RecognitionErrorMessage reports a failure of the client's recognition engine
type RecognitionErrorMessage struct {
	BaseMessage
	StreamID string `json:"stream_id"`
	Error    string `json:"error"`
}

// VoicesChangedMessage carries the voice catalog of the client's synthesizer
type VoicesChangedMessage struct {
	BaseMessage
	Voices []entities.Voice `json:"voices"`
}

// NarrationEndedMessage reports that the client finished playing a narration
type NarrationEndedMessage struct {
	BaseMessage
	NarrationID string `json:"narration_id"`
	Interrupted bool   `json:"interrupted"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StateMessage carries a full snapshot of the session
type StateMessage struct {
	BaseMessage
	State usecase.SessionSnapshot `json:"state"`
}

// EventMessage carries one session event
type EventMessage struct {
	BaseMessage
	Event usecase.Event `json:"event"`
}

// StartRecognitionMessage asks the client to start its recognition engine
type StartRecognitionMessage struct {
	BaseMessage
	StreamID       string `json:"stream_id"`
	Language       string `json:"language"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// StopRecognitionMessage asks the client to stop a recognition stream
type StopRecognitionMessage struct {
	BaseMessage
	StreamID string `json:"stream_id"`
}

// SpeakMessage asks the client to narrate text with its synthesizer
type SpeakMessage struct {
	BaseMessage
	NarrationID string  `json:"narration_id"`
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	Lang        string  `json:"lang"`
	Rate        float64 `json:"rate"`
	Pitch       float64 `json:"pitch"`
	Volume      float64 `json:"volume"`
}

// CancelSpeechMessage asks the client to silence a narration
type CancelSpeechMessage struct {
	BaseMessage
	NarrationID string `json:"narration_id"`
}

// AudioStartMessage announces the binary audio frames of a narration
type AudioStartMessage struct {
	BaseMessage
	NarrationID string `json:"narration_id"`
	Format      string `json:"format"`
	Text        string `json:"text"`
}

// AudioEndMessage marks the end of the binary audio frames of a narration
type AudioEndMessage struct {
	BaseMessage
	NarrationID string `json:"narration_id"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming message, returning a
// pointer to its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		return decode(messageBytes, &msg, nil)

	case MessageTypeToggleMic, MessageTypeStartRecording, MessageTypeStopRecording,
		MessageTypeToggleAudio, MessageTypeDismissResult, MessageTypeGetState:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeSubmitQuestion:
		var msg SubmitQuestionMessage
		return decode(messageBytes, &msg, nil)

	case MessageTypeUpdateDraft:
		var msg UpdateDraftMessage
		return decode(messageBytes, &msg, nil)

	case MessageTypeSetAudio:
		var msg SetAudioMessage
		return decode(messageBytes, &msg, func() error {
			if msg.Enabled == nil {
				return fmt.Errorf("enabled is required")
			}
			return nil
		})

	case MessageTypeSelectResult:
		var msg SelectResultMessage
		return decode(messageBytes, &msg, func() error {
			if msg.ResultID == "" {
				return fmt.Errorf("result_id is required")
			}
			return nil
		})

	case MessageTypeRecognitionStarted, MessageTypeRecognitionEnded:
		var msg RecognitionStatusMessage
		return decode(messageBytes, &msg, func() error {
			return requireStreamID(msg.StreamID)
		})

	case MessageTypeRecognitionResult:
		var msg RecognitionResultMessage
		return decode(messageBytes, &msg, func() error {
			return requireStreamID(msg.StreamID)
		})

	case MessageTypeRecognitionError:
		var msg RecognitionErrorMessage
		return decode(messageBytes, &msg, func() error {
			if err := requireStreamID(msg.StreamID); err != nil {
				return err
			}
			if msg.Error == "" {
				return fmt.Errorf("error is required")
			}
			return nil
		})

	case MessageTypeVoicesChanged:
		var msg VoicesChangedMessage
		return decode(messageBytes, &msg, func() error {
			for i, voice := range msg.Voices {
				if strings.TrimSpace(voice.Name) == "" {
					return fmt.Errorf("voices[%d].name is required", i)
				}
			}
			return nil
		})

	case MessageTypeNarrationEnded:
		var msg NarrationEndedMessage
		return decode(messageBytes, &msg, func() error {
			if msg.NarrationID == "" {
				return fmt.Errorf("narration_id is required")
			}
			return nil
		})

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func decode[T any](messageBytes []byte, msg *T, validate func() error) (interface{}, error) {
	if err := json.Unmarshal(messageBytes, msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if validate != nil {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func requireStreamID(id string) error {
	if id == "" {
		return fmt.Errorf("stream_id is required")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage wraps a session snapshot
func CreateStateMessage(snapshot usecase.SessionSnapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       snapshot,
	}
}

// CreateEventMessage wraps a session event
func CreateEventMessage(event usecase.Event) *EventMessage {
	return &EventMessage{
		BaseMessage: newBase(MessageTypeEvent),
		Event:       event,
	}
}
