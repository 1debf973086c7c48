package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/driverelay/internal/model/relay"
)

var (
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskTerminal = errors.New("task already finished")
	ErrHandleEmpty  = errors.New("task handle is required")
)

// Update carries the fields a relay may change. Percent and Bytes never move
// backwards; lower values are ignored.
type Update struct {
	Status  relay.Status
	Percent int
	Error   string
	Bytes   int64
}

// Option customises a Registry.
type Option func(*Registry)

// WithRetention evicts terminal tasks once they have been idle for ttl. Zero keeps them forever.
func WithRetention(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.retention = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry holds the progress of every task known to the process.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]relay.Progress
	retention time.Duration
	now       func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks: make(map[string]relay.Progress),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create registers handle in the Initializing phase.
func (r *Registry) Create(handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return ErrHandleEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[handle]; exists {
		return ErrTaskExists
	}
	r.tasks[handle] = relay.Progress{
		TaskID:    handle,
		Status:    relay.StatusInitializing,
		UpdatedAt: r.now().UTC(),
	}
	return nil
}

// Update applies u to handle. Terminal tasks reject further updates.
func (r *Registry) Update(handle string, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[handle]
	if !ok {
		return ErrTaskNotFound
	}
	if current.Status.IsTerminal() {
		return ErrTaskTerminal
	}

	if u.Status != "" {
		current.Status = u.Status
	}
	current.Percent = max(current.Percent, min(u.Percent, 100))
	current.Bytes = max(current.Bytes, u.Bytes)
	if u.Error != "" {
		current.Error = u.Error
	}
	current.UpdatedAt = r.now().UTC()
	r.tasks[handle] = current
	return nil
}

// AddBytes records n more bytes relayed for handle.
func (r *Registry) AddBytes(handle string, n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[handle]
	if !ok {
		return ErrTaskNotFound
	}
	if current.Status.IsTerminal() {
		return ErrTaskTerminal
	}
	current.Bytes += n
	current.UpdatedAt = r.now().UTC()
	r.tasks[handle] = current
	return nil
}

// Read returns the current snapshot for handle, or a Waiting snapshot when unknown.
func (r *Registry) Read(handle string) relay.Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if current, ok := r.tasks[handle]; ok {
		return current
	}
	return relay.Waiting(handle)
}

// Len reports how many tasks are tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Sweep drops terminal tasks idle longer than the retention and returns how
// many were removed. Without a retention it does nothing.
func (r *Registry) Sweep(now time.Time) int {
	if r.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for handle, current := range r.tasks {
		if current.Status.IsTerminal() && current.UpdatedAt.Before(cutoff) {
			delete(r.tasks, handle)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if r.retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
