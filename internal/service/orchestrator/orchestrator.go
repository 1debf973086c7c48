// Package orchestrator accepts relay requests, allocates task handles and runs
// each relay in the background.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zhouzirui/driverelay/internal/service/credential"
	"github.com/zhouzirui/driverelay/internal/service/relay"
)

var (
	// ErrUnauthorized is returned when the session handle has no usable credential.
	ErrUnauthorized = errors.New("not logged in")
	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Runner executes one relay job to completion.
type Runner interface {
	Run(ctx context.Context, job relay.Job) error
}

// TaskCreator allocates a task in the Initializing state.
type TaskCreator interface {
	Create(handle string) error
}

// Orchestrator owns the lifetime of background relays. Relays run under its
// base context, not the caller's, so they outlive the request that started them.
type Orchestrator struct {
	store  credential.Store
	tasks  TaskCreator
	runner Runner
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// mu orders Start's wg.Add against Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64

	newHandle func() string
}

// New wires an orchestrator. Call Shutdown to stop in-flight relays.
func New(store credential.Store, tasks TaskCreator, runner Runner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		tasks:     tasks,
		runner:    runner,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		newHandle: uuid.NewString,
	}
}

// Start validates the session, allocates a task and launches its relay. It
// returns as soon as the relay goroutine is scheduled.
func (o *Orchestrator) Start(ctx context.Context, session, locator string) (string, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return "", ErrUnauthorized
	}
	cred, err := o.store.Get(ctx, session)
	if err != nil {
		if errors.Is(err, credential.ErrSessionNotFound) ||
			errors.Is(err, credential.ErrCredentialMissing) ||
			errors.Is(err, credential.ErrSealedBlobInvalid) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("load session: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrShuttingDown
	}

	taskID := o.newHandle()
	if err := o.tasks.Create(taskID); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	job := relay.Job{TaskID: taskID, Locator: locator, Credential: cred}
	o.wg.Add(1)
	o.active.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.active.Add(-1)
		if err := o.runner.Run(o.ctx, job); err != nil {
			o.logger.Debug("relay finished with error", "task_id", taskID, "error", err)
		}
	}()

	o.logger.Info("relay started", "task_id", taskID, "locator", locator)
	return taskID, nil
}

// Active reports the number of relays still running.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Shutdown cancels in-flight relays and waits for them to unwind or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.cancel()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
