package tts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

const defaultCatalogRefresh = 10 * time.Minute

// CatalogWatcher polls a voice catalog and reports the voices whenever the
// catalog changes. The last known catalog is kept for late subscribers.
type CatalogWatcher struct {
	catalog repositories.VoiceCatalog
	period  time.Duration
	logger  *zap.Logger

	mu          sync.RWMutex
	voices      []entities.Voice
	loaded      bool
	subscribers map[int]func([]entities.Voice)
	nextID      int
}

// NewCatalogWatcher creates a watcher polling catalog every period
func NewCatalogWatcher(catalog repositories.VoiceCatalog, period time.Duration, logger *zap.Logger) *CatalogWatcher {
	if period <= 0 {
		period = defaultCatalogRefresh
	}
	return &CatalogWatcher{
		catalog:     catalog,
		period:      period,
		logger:      logger,
		subscribers: make(map[int]func([]entities.Voice)),
	}
}

// Subscribe registers fn for catalog changes. fn is called immediately when a
// catalog is already known. The returned function unsubscribes.
func (w *CatalogWatcher) Subscribe(fn func([]entities.Voice)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subscribers[id] = fn
	voices, loaded := w.voices, w.loaded
	w.mu.Unlock()

	if loaded {
		fn(append([]entities.Voice(nil), voices...))
	}

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subscribers, id)
	}
}

// Voices returns the last known catalog
func (w *CatalogWatcher) Voices() []entities.Voice {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]entities.Voice(nil), w.voices...)
}

// Run polls the catalog until ctx is done
func (w *CatalogWatcher) Run(ctx context.Context) {
	w.logger.Info("Starting voice catalog watcher", zap.Duration("period", w.period))

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	w.Refresh(ctx)
	for {
		select {
		case <-ticker.C:
			w.Refresh(ctx)
		case <-ctx.Done():
			w.logger.Info("Voice catalog watcher stopped")
			return
		}
	}
}

// Refresh loads the catalog once and notifies subscribers when it changed
func (w *CatalogWatcher) Refresh(ctx context.Context) {
	voices, err := w.catalog.Voices(ctx)
	if err != nil {
		w.logger.Warn("Failed to load voice catalog", zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.loaded && sameVoices(w.voices, voices) {
		w.mu.Unlock()
		return
	}
	w.voices = voices
	w.loaded = true
	subscribers := make([]func([]entities.Voice), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subscribers = append(subscribers, fn)
	}
	w.mu.Unlock()

	w.logger.Info("Voice catalog changed", zap.Int("voiceCount", len(voices)))
	for _, fn := range subscribers {
		fn(append([]entities.Voice(nil), voices...))
	}
}

func sameVoices(a, b []entities.Voice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
