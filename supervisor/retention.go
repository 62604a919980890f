package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/procengine/internal/constants"
	"github.com/RezaEskandarii/procengine/internal/lock"
	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/robfig/cron/v3"
)

const sweepTimeout = 5 * time.Minute

// Retention purges completed jobs older than a retention period on a cron
// schedule. With a lock manager only one instance sweeps at a time.
type Retention struct {
	store    store.JobStore
	locks    lock.DistributedLockManager
	period   time.Duration
	schedule string
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewRetention validates schedule, a standard five-field cron expression or
// a descriptor such as "@daily". locks may be nil.
func NewRetention(jobStore store.JobStore, locks lock.DistributedLockManager, schedule string, period time.Duration, logger *slog.Logger) (*Retention, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", period)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:    jobStore,
		locks:    locks,
		period:   period,
		schedule: schedule,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "retention"),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

func (r *Retention) Start() {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		r.logger.Error("failed to schedule retention sweep", "schedule", r.schedule, "error", err)
		return
	}
	r.cron.Start()
	r.logger.Info("retention sweep scheduled", "schedule", r.schedule, "period", r.period)
}

// Stop stops the schedule and waits for a running sweep to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep deletes completed jobs last updated more than the retention period ago.
// It returns 0 without touching the store when another instance holds the lock.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	if r.locks != nil {
		held, err := r.locks.TryAcquire(ctx, constants.RetentionLock)
		if err != nil {
			return 0, fmt.Errorf("acquire retention lock: %w", err)
		}
		if !held {
			r.logger.Debug("retention sweep skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := r.locks.Release(context.WithoutCancel(ctx), constants.RetentionLock); err != nil {
				r.logger.Warn("failed to release retention lock", "error", err)
			}
		}()
	}

	before := r.now().Add(-r.period)
	n, err := r.store.PurgeCompletedJobs(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge completed jobs: %w", err)
	}
	r.logger.Info("purged completed jobs", "count", n, "before", before)
	return n, nil
}
