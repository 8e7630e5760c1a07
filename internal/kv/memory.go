package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL support. It backs single-node
// deployments and tests; multi-replica deployments use the Postgres adapter.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	sweepStop chan struct{}
	sweepDone chan struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiration
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store and starts a background
// sweep that evicts expired entries once a minute.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]memoryEntry),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.sweepLoop(time.Minute)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		// Lazy eviction; the sweep will also catch it.
		s.evictIfExpired(key, time.Now())
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// evictIfExpired removes key only if the entry is still expired at now.
// Get observes expiry under the read lock and evicts under a separate write
// lock; a concurrent Put can land in between, so the entry is re-checked
// before deleting.
func (s *MemoryStore) evictIfExpired(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok && !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(s.entries, key)
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	close(s.sweepStop)
	<-s.sweepDone
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
