package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

// ErrSessionNotFound is returned when an archived session does not exist
var ErrSessionNotFound = errors.New("session not found")

// MemorySessionRepository archives conversations in memory. It is used when
// no MongoDB is configured and loses its content on restart.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[primitive.ObjectID]*entities.Session
}

var _ repositories.SessionRepository = (*MemorySessionRepository)(nil)

// NewMemorySessionRepository creates an empty session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[primitive.ObjectID]*entities.Session),
	}
}

// Create implements repositories.SessionRepository
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	m.sessions[session.ID] = copySession(session)
	return nil
}

// GetByID implements repositories.SessionRepository
func (m *MemorySessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return copySession(session), nil
}

// GetLastByClientID implements repositories.SessionRepository
func (m *MemorySessionRepository) GetLastByClientID(ctx context.Context, clientID string) (*entities.Session, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *entities.Session
	for _, s := range m.sessions {
		if s.ClientID != clientID {
			continue
		}
		if last == nil || s.LastActiveAt.After(last.LastActiveAt) {
			last = s
		}
	}
	if last == nil {
		return nil, nil
	}
	return copySession(last), nil
}

// GetByClientID implements repositories.SessionRepository, most recent first
func (m *MemorySessionRepository) GetByClientID(ctx context.Context, clientID string, limit int) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*entities.Session, 0)
	for _, s := range m.sessions {
		if s.ClientID == clientID {
			sessions = append(sessions, copySession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// AddMessage implements repositories.SessionRepository
func (m *MemorySessionRepository) AddMessage(ctx context.Context, sessionID primitive.ObjectID, message entities.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	session.AddMessage(message)
	return nil
}

// Update implements repositories.SessionRepository
func (m *MemorySessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID]; !exists {
		return ErrSessionNotFound
	}
	m.sessions[session.ID] = copySession(session)
	return nil
}

// ExpireSessions implements repositories.SessionRepository
func (m *MemorySessionRepository) ExpireSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, s := range m.sessions {
		if s.Status == entities.SessionStatusActive && now.After(s.ExpiresAt) {
			s.Expire()
		}
	}
	return nil
}

func copySession(s *entities.Session) *entities.Session {
	c := *s
	c.Messages = append([]entities.ChatMessage(nil), s.Messages...)
	if s.LastMessageAt != nil {
		at := *s.LastMessageAt
		c.LastMessageAt = &at
	}
	return &c
}
