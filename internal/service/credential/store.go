package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/driverelay/internal/model/relay"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrCredentialMissing = errors.New("credential is required")
)

// Store maps opaque session handles to authorization blobs. Implementations
// must be safe for concurrent Put and Get calls.
type Store interface {
	Put(ctx context.Context, credential []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
}

// MemoryStore keeps sessions in a process-local map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]relay.Session
}

// NewMemoryStore returns an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]relay.Session)}
}

// Put stores a copy of credential under a freshly generated handle.
func (s *MemoryStore) Put(_ context.Context, credential []byte) (string, error) {
	if len(credential) == 0 {
		return "", ErrCredentialMissing
	}

	session := relay.Session{
		Handle:     uuid.NewString(),
		Credential: cloneBytes(credential),
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.Handle] = session
	s.mu.Unlock()

	return session.Handle, nil
}

// Get returns a copy of the credential stored for handle.
func (s *MemoryStore) Get(_ context.Context, handle string) ([]byte, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.RLock()
	session, ok := s.sessions[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneBytes(session.Credential), nil
}

// Len reports how many sessions are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
