package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	// Now is injected for testability.
	Now func() time.Time
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		Now:     time.Now,
	}
}

// Get returns a copy of the payload for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(current.payload), true, nil
}

// Set stores value for ttl. A non-positive ttl removes the key.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = entry{
		payload:   bytes.Clone(value),
		createdAt: s.Now(),
		ttl:       ttl,
	}
	return nil
}

// Has reports whether a live entry exists.
func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.liveLocked(key)
	return ok, nil
}

// Invalidate removes key.
func (s *MemoryStore) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.entries)
	return nil
}

// TimeRemaining reports the validity left on key.
func (s *MemoryStore) TimeRemaining(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.liveLocked(key)
	if !ok {
		return 0, false, nil
	}
	return current.remaining(s.Now()), true, nil
}

// Len returns the number of stored entries, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) liveLocked(key string) (entry, bool) {
	current, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if current.expired(s.Now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return current, true
}
