package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satriahrh/buddy/internal/api"
	ws "github.com/satriahrh/buddy/internal/websocket"
	"github.com/satriahrh/buddy/usecase"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server   string
		expected string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://buddy.example.com/", "wss://buddy.example.com/ws"},
		{"http://localhost:8080/buddy", "ws://localhost:8080/buddy/ws"},
	}

	for _, tt := range tests {
		got, err := websocketURL(tt.server)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.server, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}

func TestAuthenticateClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/client/auth" {
			t.Errorf("Expected auth path, got %s", r.URL.Path)
		}
		var req api.ClientAuthRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Secret != "buddy-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "authentication_failed"})
			return
		}
		json.NewEncoder(w).Encode(api.ClientAuthResponse{
			Token:     "token-123",
			ExpiresAt: time.Now().Add(time.Hour),
			ClientID:  req.ClientID,
		})
	}))
	defer server.Close()

	token, err := authenticateClient(server.URL, "buddy-web", "buddy-secret")
	if err != nil {
		t.Fatalf("Expected authentication to succeed, got %v", err)
	}
	if token != "token-123" {
		t.Errorf("Expected token-123, got %s", token)
	}

	if _, err := authenticateClient(server.URL, "buddy-web", "wrong"); err == nil || !strings.Contains(err.Error(), "authentication_failed") {
		t.Errorf("Expected authentication failure, got %v", err)
	}
}

func TestConversation_PrintEvent(t *testing.T) {
	var out bytes.Buffer
	s := &conversation{out: &out}

	s.handleServerMessage(envelope{
		Type:    ws.MessageTypeError,
		Code:    "result_not_found",
		Message: "Result not found",
	})
	s.printEvent(usecase.Event{Type: usecase.EventTranscriptUpdated, Transcript: "what is a heap"})

	got := out.String()
	if !strings.Contains(got, "! result_not_found: Result not found") {
		t.Errorf("Expected the error to be printed, got %q", got)
	}
	if !strings.Contains(got, "... what is a heap") {
		t.Errorf("Expected the transcript to be printed, got %q", got)
	}
}
