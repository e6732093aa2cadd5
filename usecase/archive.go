package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

const (
	archiveQueueSize    = 64
	archiveWriteTimeout = 5 * time.Second
)

// ConversationArchive writes a client's chat history to the session
// repository in append order on a single background writer
type ConversationArchive struct {
	repo     repositories.SessionRepository
	clientID string
	metadata entities.SessionMetadata
	logger   *zap.Logger

	mu     sync.Mutex
	queue  chan entities.ChatMessage
	closed bool
	done   chan struct{}

	// session is only touched by the writer goroutine
	session *entities.Session
}

// NewConversationArchive creates an archive for clientID. Start must be
// called before messages are recorded.
func NewConversationArchive(repo repositories.SessionRepository, clientID string, metadata entities.SessionMetadata, logger *zap.Logger) *ConversationArchive {
	return &ConversationArchive{
		repo:     repo,
		clientID: clientID,
		metadata: metadata,
		logger:   logger.With(zap.String("clientID", clientID)),
		queue:    make(chan entities.ChatMessage, archiveQueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the background writer
func (a *ConversationArchive) Start() {
	go a.writer()
}

// Record queues message for archiving without blocking. Messages are dropped
// with a warning when the writer falls behind.
func (a *ConversationArchive) Record(message entities.ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- message:
	default:
		a.logger.Warn("Archive queue full, dropping message", zap.String("sender", string(message.Sender)))
	}
}

// Stop flushes queued messages and stops the writer
func (a *ConversationArchive) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
}

func (a *ConversationArchive) writer() {
	defer close(a.done)
	for message := range a.queue {
		if err := a.store(message); err != nil {
			a.logger.Error("Failed to archive chat message", zap.Error(err))
		}
	}
}

func (a *ConversationArchive) store(message entities.ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()

	if a.session == nil {
		last, err := a.repo.GetLastByClientID(ctx, a.clientID)
		if err != nil {
			return fmt.Errorf("failed to get last session: %w", err)
		}
		if last != nil && last.CanContinue() {
			a.session = last
			a.logger.Debug("Continuing archived session", zap.String("sessionID", last.ID.Hex()))
		}
	}

	if a.session == nil || !a.session.CanContinue() {
		session := entities.NewSession(a.clientID)
		if a.metadata.Language != "" {
			session.Metadata.Language = a.metadata.Language
		}
		session.Metadata.SpeechProvider = a.metadata.SpeechProvider
		if err := a.repo.Create(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		a.session = session
		a.logger.Info("Started archived session", zap.String("sessionID", session.ID.Hex()))
	}

	if err := a.repo.AddMessage(ctx, a.session.ID, message); err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	a.session.AddMessage(message)
	return nil
}
