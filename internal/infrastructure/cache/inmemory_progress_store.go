package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domainsync "github.com/truthsource/backend/internal/domain/sync"
)

// progressEntry represents a stored snapshot with expiration
type progressEntry struct {
	progress  *domainsync.SyncProgress
	expiresAt time.Time
}

// InMemoryProgressStore implements ProgressStore using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryProgressStore struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]progressEntry
	ttl       time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryProgressStore creates a new in-memory progress store
// It starts a background goroutine to clean up expired entries
func NewInMemoryProgressStore(ttl time.Duration) *InMemoryProgressStore {
	store := &InMemoryProgressStore{
		entries:  make(map[uuid.UUID]progressEntry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Set overwrites the snapshot for the job
func (s *InMemoryProgressStore) Set(ctx context.Context, progress *domainsync.SyncProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[progress.JobID] = progressEntry{
		progress:  progress,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Get returns the latest snapshot for the job
func (s *InMemoryProgressStore) Get(ctx context.Context, jobID uuid.UUID) (*domainsync.SyncProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[jobID]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, domainsync.ErrProgressNotFound
	}
	return e.progress, nil
}

// Delete drops the snapshot once a job is terminal
func (s *InMemoryProgressStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, jobID)
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (s *InMemoryProgressStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (s *InMemoryProgressStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries from the store
func (s *InMemoryProgressStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for jobID, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, jobID)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *InMemoryProgressStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure InMemoryProgressStore implements ProgressStore
var _ domainsync.ProgressStore = (*InMemoryProgressStore)(nil)
