package adapters

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

var (
	ErrClientNotFound     = errors.New("client not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MemoryClientRepository keeps the clients allowed to connect and their secrets in memory
type MemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*entities.Client
	secrets map[string]string
}

var _ repositories.ClientRepository = (*MemoryClientRepository)(nil)

// NewMemoryClientRepository creates an empty client repository
func NewMemoryClientRepository() *MemoryClientRepository {
	return &MemoryClientRepository{
		clients: make(map[string]*entities.Client),
		secrets: make(map[string]string),
	}
}

// NewMemoryClientRepositoryFromCredentials registers every "id:secret" pair
// of a comma separated list
func NewMemoryClientRepositoryFromCredentials(credentials string) (*MemoryClientRepository, error) {
	repo := NewMemoryClientRepository()
	for _, pair := range strings.Split(credentials, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid client credential %q, expected id:secret", pair)
		}
		if err := repo.Create(context.Background(), &entities.Client{ID: id, Name: id}); err != nil {
			return nil, err
		}
		if err := repo.RegisterClientSecret(id, secret); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// ValidateClient implements repositories.ClientRepository
func (m *MemoryClientRepository) ValidateClient(clientID, secret string) (*entities.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.secrets[clientID]
	if !exists {
		return nil, ErrClientNotFound
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) != 1 {
		return nil, ErrInvalidCredentials
	}

	client, exists := m.clients[clientID]
	if !exists {
		return nil, ErrClientNotFound
	}
	clientCopy := *client
	return &clientCopy, nil
}

// Create implements repositories.ClientRepository. An empty ID is generated.
func (m *MemoryClientRepository) Create(ctx context.Context, client *entities.Client) error {
	if client == nil {
		return errors.New("client cannot be nil")
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if err := client.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[client.ID]; exists {
		return errors.New("client with this id already exists")
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	clientCopy := *client
	m.clients[client.ID] = &clientCopy
	return nil
}

// GetByID implements repositories.ClientRepository
func (m *MemoryClientRepository) GetByID(ctx context.Context, id string) (*entities.Client, error) {
	if id == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[id]
	if !exists {
		return nil, ErrClientNotFound
	}
	clientCopy := *client
	return &clientCopy, nil
}

// RegisterClientSecret sets the secret a client authenticates with
func (m *MemoryClientRepository) RegisterClientSecret(clientID, secret string) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[clientID] = secret
	return nil
}
