package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/buddy/domain/entities"
)

func TestValidateMongoConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  MongoConfig
		wantErr bool
	}{
		{"valid", MongoConfig{URI: "mongodb://localhost:27017"}, false},
		{"srv", MongoConfig{URI: "mongodb+srv://cluster.example.net"}, false},
		{"missing uri", MongoConfig{}, true},
		{"wrong scheme", MongoConfig{URI: "postgres://localhost"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMongoConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestSessionRepository_Integration requires a running MongoDB instance and
// is skipped when MONGODB_URI is not set
func TestSessionRepository_Integration(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, MongoConfig{URI: uri, Database: "buddy_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	repo, err := NewSessionRepository(ctx, client.Database, logger)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	t.Run("CreateAndGetSession", func(t *testing.T) {
		session := entities.NewSession("client-001")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if retrieved.ClientID != "client-001" {
			t.Errorf("Expected client ID client-001, got %s", retrieved.ClientID)
		}
		if retrieved.Status != entities.SessionStatusActive {
			t.Errorf("Expected status %s, got %s", entities.SessionStatusActive, retrieved.Status)
		}
	})

	t.Run("AddMessage", func(t *testing.T) {
		session := entities.NewSession("client-002")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		now := time.Now()
		if err := repo.AddMessage(ctx, session.ID, entities.NewUserMessage("what is a heap", now)); err != nil {
			t.Fatalf("Failed to add message: %v", err)
		}
		if err := repo.AddMessage(ctx, session.ID, entities.NewAgentMessage("A heap is a tree.", now)); err != nil {
			t.Fatalf("Failed to add message: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(retrieved.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(retrieved.Messages))
		}
		if retrieved.Messages[1].Sender != entities.SenderAgent {
			t.Errorf("Expected agent message second, got %s", retrieved.Messages[1].Sender)
		}
		if retrieved.Metadata.QuestionCount != 1 {
			t.Errorf("Expected question count 1, got %d", retrieved.Metadata.QuestionCount)
		}
		if retrieved.LastMessageAt == nil {
			t.Error("Expected last message time to be set")
		}

		err = repo.AddMessage(ctx, primitive.NewObjectID(), entities.NewUserMessage("lost", now))
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("GetLastByClientID", func(t *testing.T) {
		last, err := repo.GetLastByClientID(ctx, "client-unknown")
		if err != nil || last != nil {
			t.Errorf("Expected no session and no error, got %v, %v", last, err)
		}

		first := entities.NewSession("client-003")
		repo.Create(ctx, first)
		time.Sleep(10 * time.Millisecond)
		second := entities.NewSession("client-003")
		repo.Create(ctx, second)

		last, err = repo.GetLastByClientID(ctx, "client-003")
		if err != nil {
			t.Fatalf("Failed to get last session: %v", err)
		}
		if last.ID != second.ID {
			t.Errorf("Expected the most recent session %s, got %s", second.ID.Hex(), last.ID.Hex())
		}

		sessions, err := repo.GetByClientID(ctx, "client-003", 10)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("Expected 2 sessions, got %d", len(sessions))
		}
	})

	t.Run("ExpireSessions", func(t *testing.T) {
		session := entities.NewSession("client-004")
		session.ExpiresAt = time.Now().Add(-time.Hour)
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		if err := repo.ExpireSessions(ctx); err != nil {
			t.Fatalf("Failed to expire sessions: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if retrieved.Status != entities.SessionStatusExpired {
			t.Errorf("Expected status %s, got %s", entities.SessionStatusExpired, retrieved.Status)
		}
	})
}
