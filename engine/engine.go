// Package engine runs jobs: it admits requests into a bounded working set,
// executes each job's tasks in order on a background loop and persists every
// state change so a restarted or newly elected instance can pick the work up.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/procengine/internal/buffer"
	"github.com/RezaEskandarii/procengine/internal/lock"
	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/RezaEskandarii/procengine/types"
	"github.com/RezaEskandarii/procengine/types/config"
	"golang.org/x/sync/semaphore"
)

var ErrAlreadyStarted = errors.New("engine already started")

// Executor performs a task's instruction.
type Executor interface {
	Execute(ctx context.Context, task *types.Task) types.ExecutionResult
}

// Gate decides whether this instance should process jobs right now.
// An error counts as "no".
type Gate interface {
	ShouldRun(ctx context.Context) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// entry is a job in the working set. A job holds a queue slot from admission
// until it leaves the working set; recovered jobs take one only if it is free.
type entry struct {
	job      *types.Job
	slot     bool
	admitted bool
}

type Engine struct {
	cfg      *config.EngineConfig
	store    store.JobStore
	executor Executor
	gate     Gate
	clock    Clock
	logger   *slog.Logger

	mu        sync.RWMutex
	inbox     map[string]*entry
	instances map[string]string // instance id -> job key

	slots    *semaphore.Weighted
	occupied atomic.Int64

	gateMu          sync.Mutex
	outcomes        *buffer.Outcomes
	pendingRecovery bool

	running   atomic.Bool
	disabled  atomic.Bool
	idle      atomic.Bool
	unhealthy atomic.Bool

	lifecycle sync.Mutex
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Engine)

func WithGate(g Gate) Option {
	return func(e *Engine) { e.gate = g }
}

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(cfg *config.EngineConfig, jobStore store.JobStore, executor Executor, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		store:     jobStore,
		executor:  executor,
		gate:      lock.AlwaysGate{},
		clock:     systemClock{},
		logger:    slog.Default(),
		inbox:     make(map[string]*entry),
		instances: make(map[string]string),
		slots:     semaphore.NewWeighted(int64(cfg.QueueCapacity)),
		outcomes:  buffer.NewOutcomes(buffer.DefaultSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("instance", cfg.Instance)
	return e
}

// Start launches the processing loop. It returns immediately; the loop runs
// until ctx is canceled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running.Store(true)

	go e.run(runCtx, e.done)
	return nil
}

// Stop cancels the loop and waits for the current iteration, including any
// task in flight, to finish.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	cancel, done := e.cancel, e.done
	e.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	e.lifecycle.Lock()
	if e.done == done {
		e.cancel = nil
		e.runCtx = nil
	}
	e.lifecycle.Unlock()
}

// Done is closed when the current loop exits. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.done
}

func (e *Engine) runContext() context.Context {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.runCtx
}

// Status reports the engine's health flags.
func (e *Engine) Status() types.HealthStatus {
	var h types.HealthStatus
	if e.running.Load() {
		h |= types.HealthRunning
	}
	if e.unhealthy.Load() {
		h |= types.HealthUnhealthy
	}
	if e.occupied.Load() >= int64(e.cfg.QueueCapacity) {
		h |= types.HealthQueueFull
	}
	if e.disabled.Load() {
		h |= types.HealthDisabled
	}
	if e.idle.Load() {
		h |= types.HealthIdle
	}
	return h
}

// InboxCount returns the number of jobs in the working set. It includes
// requests that hold a reservation but are still waiting for a queue slot.
func (e *Engine) InboxCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.inbox)
}

// HasQueuedJob reports whether a job with the given key is in the working
// set, counting a reservation still waiting for a queue slot. It answers the
// same way the duplicate check in EnqueueJob does.
func (e *Engine) HasQueuedJob(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.inbox[key]
	return ok
}
