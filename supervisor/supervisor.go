// Package supervisor hosts the engine: it starts it with the process, watches
// its health and shuts the process down when the engine stays unhealthy.
package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/RezaEskandarii/procengine/types"
	"github.com/RezaEskandarii/procengine/types/config"
)

// ErrEngineUnhealthy is returned by Run after MaxUnhealthyChecks failed health checks in a row.
var ErrEngineUnhealthy = errors.New("process engine unhealthy")

const shutdownTimeout = 10 * time.Second

// Engine is the part of engine.Engine the supervisor drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop()
	Status() types.HealthStatus
	InboxCount() int
}

// Runner is a background worker that runs until its context is done.
type Runner interface {
	Run(ctx context.Context) error
}

// Resigner gives up a leadership claim so a standby instance can take over
// without waiting for the claim to expire.
type Resigner interface {
	Resign(ctx context.Context) error
}

type Supervisor struct {
	engine    Engine
	cfg       *config.EngineConfig
	logger    *slog.Logger
	retention *Retention
	runners   []Runner
	resigner  Resigner
	closers   []io.Closer

	unhealthyChecks int
}

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithRetention schedules purging of finished jobs while the supervisor runs.
func WithRetention(r *Retention) Option {
	return func(s *Supervisor) { s.retention = r }
}

// WithRunners starts each runner after the engine and stops it before the engine.
func WithRunners(runners ...Runner) Option {
	return func(s *Supervisor) { s.runners = append(s.runners, runners...) }
}

// WithResigner resigns leadership after the engine has stopped and before
// the closers run.
func WithResigner(r Resigner) Option {
	return func(s *Supervisor) { s.resigner = r }
}

// WithClosers closes each closer, in order, once everything else has stopped.
func WithClosers(closers ...io.Closer) Option {
	return func(s *Supervisor) { s.closers = append(s.closers, closers...) }
}

func New(engine Engine, cfg *config.EngineConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		engine: engine,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s
}

// Run starts the engine and its companions and blocks until ctx is done or
// the engine has been unhealthy for too long. Cancellation is a clean stop and
// returns nil; sustained unhealthiness returns ErrEngineUnhealthy.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		s.closeAll()
		return err
	}
	s.logger.Info("supervisor started",
		"health_check_interval", s.cfg.HealthCheckInterval,
		"max_unhealthy_checks", s.cfg.MaxUnhealthyChecks,
	)

	var server *http.Server
	if s.cfg.HealthAddr != "" {
		server = &http.Server{
			Addr:              s.cfg.HealthAddr,
			Handler:           NewHealthRouter(s.engine),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("health server stopped", "error", err)
			}
		}()
		s.logger.Info("health server listening", "addr", s.cfg.HealthAddr)
	}

	if s.retention != nil {
		s.retention.Start()
	}

	runCtx, cancelRunners := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, r := range s.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(runCtx); err != nil {
				s.logger.Error("background worker stopped", "error", err)
			}
		}()
	}

	err := s.watch(ctx)

	cancelRunners()
	wg.Wait()
	s.engine.Stop()
	if s.retention != nil {
		s.retention.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("health server shutdown", "error", err)
		}
		cancel()
	}
	s.resign()
	s.closeAll()

	s.logger.Info("supervisor stopped")
	return err
}

func (s *Supervisor) watch(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.check(s.engine.Status()) {
				s.logger.Error("engine unhealthy for too long, giving up", "checks", s.unhealthyChecks)
				return ErrEngineUnhealthy
			}
		}
	}
}

// check records one health observation and reports whether the unhealthy
// ceiling has been reached.
func (s *Supervisor) check(status types.HealthStatus) bool {
	if status.Has(types.HealthQueueFull) {
		s.logger.Warn("engine queue is full, callers are being held back",
			"capacity", s.cfg.QueueCapacity, "inbox", s.engine.InboxCount())
	}

	if status.Has(types.HealthRunning) && !status.Has(types.HealthUnhealthy) {
		s.unhealthyChecks = 0
		return false
	}

	s.unhealthyChecks++
	s.logger.Warn("engine health check failed",
		"status", status.String(), "count", s.unhealthyChecks, "max", s.cfg.MaxUnhealthyChecks)
	return s.unhealthyChecks >= s.cfg.MaxUnhealthyChecks
}

func (s *Supervisor) resign() {
	if s.resigner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.resigner.Resign(ctx); err != nil {
		s.logger.Warn("failed to resign leadership", "error", err)
	}
}

func (s *Supervisor) closeAll() {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("failed to close resources", "error", err)
	}
}
