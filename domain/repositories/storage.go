package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/buddy/domain/entities"
)

// ClientRepository defines data access methods for clients
type ClientRepository interface {
	Create(ctx context.Context, client *entities.Client) error
	GetByID(ctx context.Context, id string) (*entities.Client, error)
	// ValidateClient validates client credentials for authentication
	ValidateClient(clientID, secret string) (*entities.Client, error)
}

// SessionRepository stores archived conversation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Session, error)
	// GetLastByClientID returns the most recent session of a client, nil when there is none
	GetLastByClientID(ctx context.Context, clientID string) (*entities.Session, error)
	GetByClientID(ctx context.Context, clientID string, limit int) ([]*entities.Session, error)
	AddMessage(ctx context.Context, sessionID primitive.ObjectID, message entities.ChatMessage) error
	Update(ctx context.Context, session *entities.Session) error
	// ExpireSessions marks sessions past their expiration as expired
	ExpireSessions(ctx context.Context) error
}
