package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryStore is an in-memory StateStore for development and tests.
// State does not survive a restart, so a restarted instance may
// redeliver until the source marks mail read.
type MemoryStore struct {
	mu           sync.RWMutex
	processed    map[string]memoryEntry
	throttled    map[string]memoryEntry
	lastFetch    time.Time
	processedTTL time.Duration
	throttleTTL  time.Duration
	cleanupFreq  time.Duration
	logger       *zap.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewMemoryStore creates an in-memory state store with background expiry
func NewMemoryStore(processedTTL, throttleTTL, cleanupFreq time.Duration, logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		processed:    make(map[string]memoryEntry),
		throttled:    make(map[string]memoryEntry),
		processedTTL: processedTTL,
		throttleTTL:  throttleTTL,
		cleanupFreq:  cleanupFreq,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
	go s.startCleanupTask()
	return s
}

// IsProcessed reports whether (message, target) was already delivered
func (s *MemoryStore) IsProcessed(ctx context.Context, messageID, targetID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.processed[processedKey(messageID, targetID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// IsDuplicateContent reports whether the same content reached the target
// within the window
func (s *MemoryStore) IsDuplicateContent(ctx context.Context, sender, subject, targetID string, window time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.throttled[throttleKey(sender, subject, targetID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return time.Since(entry.storedAt) <= window, nil
}

// MarkProcessed records a delivery in both keyspaces
func (s *MemoryStore) MarkProcessed(ctx context.Context, messageID, targetID, sender, subject string) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[processedKey(messageID, targetID)] = memoryEntry{storedAt: now, expiresAt: now.Add(s.processedTTL)}
	s.throttled[throttleKey(sender, subject, targetID)] = memoryEntry{storedAt: now, expiresAt: now.Add(s.throttleTTL)}
	return nil
}

// LastFetchedAt returns the batch fetch high-water mark
func (s *MemoryStore) LastFetchedAt(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch, nil
}

// SetLastFetchedAt advances the batch fetch high-water mark
func (s *MemoryStore) SetLastFetchedAt(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetch = t
	return nil
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	expired := 0
	for key, entry := range s.processed {
		if now.After(entry.expiresAt) {
			delete(s.processed, key)
			expired++
		}
	}
	for key, entry := range s.throttled {
		if now.After(entry.expiresAt) {
			delete(s.throttled, key)
			expired++
		}
	}
	s.logger.Debug("Cleaned up expired state entries", zap.Int("expired_count", expired))
}

func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background cleanup task
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
