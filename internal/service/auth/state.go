package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// StateStore tracks OAuth state parameters until they are redeemed.
type StateStore interface {
	Put(state string, ttl time.Duration) error
	Take(state string) bool
}

type memoryStateStore struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

// NewMemoryStateStore constructs an in-memory store for state parameters.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{items: make(map[string]time.Time), now: time.Now}
}

func (s *memoryStateStore) Put(state string, ttl time.Duration) error {
	if state == "" {
		return fmt.Errorf("state token is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state] = s.now().Add(ttl)
	s.pruneLocked()
	return nil
}

// Take redeems state once; expired or unknown values report false.
func (s *memoryStateStore) Take(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	_, ok := s.items[state]
	delete(s.items, state)
	return ok
}

func (s *memoryStateStore) pruneLocked() {
	now := s.now()
	for key, expires := range s.items {
		if now.After(expires) {
			delete(s.items, key)
		}
	}
}

// GenerateState creates a cryptographically random state string.
func GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
