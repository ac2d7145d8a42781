package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ SessionStore = (*MemoryStore)(nil)

type memoryEntry struct {
	username string
	expires  time.Time
}

// MemoryStore is a process-local SessionStore for development and tests.
// Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	keyer
}

func NewMemoryStore(ttl time.Duration, secret string) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		keyer:   keyer{secret: []byte(secret)},
	}
}

func (s *MemoryStore) Set(_ context.Context, token, username string) (bool, error) {
	key := s.key(token)
	if username == "" {
		return false, errors.New("cache: empty username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{username: username, expires: s.now().Add(s.ttl)}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (string, bool, error) {
	key := s.key(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.username, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	key := s.key(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	return ok && s.now().Before(e.expires), nil
}
