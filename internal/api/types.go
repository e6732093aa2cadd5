package api

import (
	"time"

	"github.com/satriahrh/buddy/domain/entities"
)

// ClientAuthRequest represents the request payload for client authentication
type ClientAuthRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

// ClientAuthResponse represents the response payload for client authentication
type ClientAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ResourceRequest represents a link based resource submission
type ResourceRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	MediaType   entities.MediaType `json:"media_type"`
	MediaLink   string             `json:"media_link"`
	Course      string             `json:"course"`
	Summary     string             `json:"summary"`
}

// SessionListResponse lists the archived conversations of a client
type SessionListResponse struct {
	Sessions []*entities.Session `json:"sessions"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
