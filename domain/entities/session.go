package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// sessionLifetime is how long an archived session is kept after its last activity
	sessionLifetime = 24 * time.Hour

	// sessionIdleGap is the silence after which a new archived session is started
	sessionIdleGap = 30 * time.Minute
)

// SessionStatus represents the status of an archived session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// SessionMetadata contains session-level metadata
type SessionMetadata struct {
	Language       string `json:"language" bson:"language"`
	SpeechProvider string `json:"speech_provider,omitempty" bson:"speech_provider,omitempty"`
	QuestionCount  int    `json:"question_count" bson:"question_count"`
}

// Session is the archived record of a client's conversation with the search agent
type Session struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID      string             `json:"client_id" bson:"client_id"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time          `json:"expires_at" bson:"expires_at"`
	Status        SessionStatus      `json:"status" bson:"status"`
	Messages      []ChatMessage      `json:"messages" bson:"messages"`
	Metadata      SessionMetadata    `json:"metadata" bson:"metadata"`
}

// NewSession creates a new archived session for a client
func NewSession(clientID string) *Session {
	now := time.Now()
	return &Session{
		ID:           primitive.NewObjectID(),
		ClientID:     clientID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(sessionLifetime),
		Status:       SessionStatusActive,
		Messages:     make([]ChatMessage, 0),
		Metadata: SessionMetadata{
			Language: "en-US",
		},
	}
}

// AddMessage appends a chat message to the session
func (s *Session) AddMessage(message ChatMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, message)
	if message.IsUser() {
		s.Metadata.QuestionCount++
	}
	at := message.Timestamp
	s.LastMessageAt = &at
	s.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(sessionLifetime)
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// ShouldCreateNewSession reports whether the conversation has been idle long
// enough that new messages belong to a fresh session
func (s *Session) ShouldCreateNewSession() bool {
	if s.LastMessageAt == nil {
		return false
	}
	return time.Since(*s.LastMessageAt) > sessionIdleGap
}

// CanContinue reports whether new messages may be appended to this session
func (s *Session) CanContinue() bool {
	return !s.IsExpired() && !s.ShouldCreateNewSession()
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.UpdateLastActive()
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ClientID == "" {
		return errors.New("client_id is required")
	}

	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}

	return nil
}
