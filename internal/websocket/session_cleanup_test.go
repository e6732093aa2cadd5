package websocket

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/buddy/adapters"
	"github.com/satriahrh/buddy/domain/entities"
)

func TestSessionCleanupService_ExpiresSessions(t *testing.T) {
	repo := adapters.NewMemorySessionRepository()
	ctx := context.Background()

	stale := entities.NewSession("buddy-web")
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	service := NewSessionCleanupService(repo, 10*time.Millisecond, zaptest.NewLogger(t))
	service.Start()
	defer service.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, _ := repo.GetByID(ctx, stale.ID)
		if got.Status == entities.SessionStatusExpired {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Expected the stale session to be expired")
}

func TestSessionCleanupService_StopTwice(t *testing.T) {
	service := NewSessionCleanupService(adapters.NewMemorySessionRepository(), 0, zaptest.NewLogger(t))
	if service.interval != defaultCleanupInterval {
		t.Errorf("Expected default interval %v, got %v", defaultCleanupInterval, service.interval)
	}

	service.Start()
	service.Stop()
	service.Stop()
}
