package entities

import "time"

// Sender identifies who authored a chat message
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ChatMessage is one entry of a conversation's history. Messages are never
// modified after they are appended.
type ChatMessage struct {
	Sender    Sender    `json:"sender" bson:"sender"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// NewUserMessage creates a message authored by the user
func NewUserMessage(text string, at time.Time) ChatMessage {
	return ChatMessage{Sender: SenderUser, Text: text, Timestamp: at}
}

// NewAgentMessage creates a message authored by the agent
func NewAgentMessage(text string, at time.Time) ChatMessage {
	return ChatMessage{Sender: SenderAgent, Text: text, Timestamp: at}
}

// IsUser reports whether the message was authored by the user
func (m ChatMessage) IsUser() bool {
	return m.Sender == SenderUser
}
