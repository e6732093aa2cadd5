package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/satriahrh/buddy/usecase"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantErr  bool
		wantType interface{}
	}{
		{name: "ping", message: `{"type":"ping","data":"hi"}`, wantType: &PingMessage{}},
		{name: "toggle mic", message: `{"type":"toggle_mic"}`, wantType: &ControlMessage{}},
		{name: "get state", message: `{"type":"get_state"}`, wantType: &ControlMessage{}},
		{name: "submit question", message: `{"type":"submit_question","text":"what is a heap"}`, wantType: &SubmitQuestionMessage{}},
		{name: "submit draft", message: `{"type":"submit_question"}`, wantType: &SubmitQuestionMessage{}},
		{name: "update draft", message: `{"type":"update_draft","text":"what is"}`, wantType: &UpdateDraftMessage{}},
		{name: "set audio", message: `{"type":"set_audio","enabled":false}`, wantType: &SetAudioMessage{}},
		{name: "set audio without flag", message: `{"type":"set_audio"}`, wantErr: true},
		{name: "select result", message: `{"type":"select_result","result_id":"r1"}`, wantType: &SelectResultMessage{}},
		{name: "select without id", message: `{"type":"select_result"}`, wantErr: true},
		{name: "recognition started", message: `{"type":"recognition_started","stream_id":"s1"}`, wantType: &RecognitionStatusMessage{}},
		{name: "recognition result", message: `{"type":"recognition_result","stream_id":"s1","transcript":"heap","is_final":true}`, wantType: &RecognitionResultMessage{}},
		{name: "result without stream", message: `{"type":"recognition_result","transcript":"heap"}`, wantErr: true},
		{name: "recognition error", message: `{"type":"recognition_error","stream_id":"s1","error":"not-allowed"}`, wantType: &RecognitionErrorMessage{}},
		{name: "recognition error without reason", message: `{"type":"recognition_error","stream_id":"s1"}`, wantErr: true},
		{name: "voices", message: `{"type":"voices_changed","voices":[{"name":"Google UK English Male","lang":"en-GB"}]}`, wantType: &VoicesChangedMessage{}},
		{name: "voice without name", message: `{"type":"voices_changed","voices":[{"lang":"en-GB"}]}`, wantErr: true},
		{name: "narration ended", message: `{"type":"narration_ended","narration_id":"n1"}`, wantType: &NarrationEndedMessage{}},
		{name: "narration ended without id", message: `{"type":"narration_ended"}`, wantErr: true},
		{name: "missing type", message: `{"text":"hello"}`, wantErr: true},
		{name: "unknown type", message: `{"type":"audio_chunk"}`, wantErr: true},
		{name: "invalid json", message: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if gotType, wantType := messageKind(msg), messageKind(tt.wantType); gotType != wantType {
				t.Errorf("Expected %s, got %s", wantType, gotType)
			}
		})
	}
}

func messageKind(v interface{}) string {
	switch v.(type) {
	case *PingMessage:
		return "ping"
	case *ControlMessage:
		return "control"
	case *SubmitQuestionMessage:
		return "submit"
	case *UpdateDraftMessage:
		return "draft"
	case *SetAudioMessage:
		return "audio"
	case *SelectResultMessage:
		return "select"
	case *RecognitionStatusMessage:
		return "status"
	case *RecognitionResultMessage:
		return "result"
	case *RecognitionErrorMessage:
		return "recognition_error"
	case *VoicesChangedMessage:
		return "voices"
	case *NarrationEndedMessage:
		return "narration_ended"
	}
	return "unknown"
}

func TestMessageValidator_Fields(t *testing.T) {
	validator := NewMessageValidator()

	msg, err := validator.ValidateMessage([]byte(`{"type":"recognition_result","stream_id":"s1","transcript":"binary heap","is_final":true}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	result := msg.(*RecognitionResultMessage)
	if result.StreamID != "s1" || result.Transcript != "binary heap" || !result.IsFinal {
		t.Errorf("Unexpected recognition result %+v", result)
	}

	msg, err = validator.ValidateMessage([]byte(`{"type":"set_audio","enabled":false}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	if enabled := msg.(*SetAudioMessage).Enabled; enabled == nil || *enabled {
		t.Errorf("Expected enabled false, got %v", enabled)
	}

	msg, err = validator.ValidateMessage([]byte(`{"type":"stop_recording","message_id":"m-7"}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	control := msg.(*ControlMessage)
	if control.Type != MessageTypeStopRecording || control.MessageID != "m-7" {
		t.Errorf("Unexpected control message %+v", control)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage("result_not_found", "Result is not part of the current results", "r9")

	if msg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Code != "result_not_found" {
		t.Errorf("Expected code result_not_found, got %s", msg.Code)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", msg.Timestamp)
	}

	payload, _ := json.Marshal(msg)
	var decoded map[string]interface{}
	json.Unmarshal(payload, &decoded)
	if decoded["error_code"] != "result_not_found" || decoded["details"] != "r9" {
		t.Errorf("Unexpected wire format %s", payload)
	}
}

func TestCreateEventMessage(t *testing.T) {
	msg := CreateEventMessage(usecase.Event{Type: usecase.EventBusyChanged, Busy: true})

	payload, _ := json.Marshal(msg)
	var decoded struct {
		Type  string `json:"type"`
		Event struct {
			Type string `json:"type"`
			Busy bool   `json:"busy"`
		} `json:"event"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to decode event message: %v", err)
	}
	if decoded.Type != "event" || decoded.Event.Type != "busy_changed" || !decoded.Event.Busy {
		t.Errorf("Unexpected wire format %s", payload)
	}
}
