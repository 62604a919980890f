package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/internal/state"
	"github.com/RezaEskandarii/procengine/types"
	"golang.org/x/sync/errgroup"
)

const storeTimeout = 30 * time.Second

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.running.Store(false)

	e.logger.Info("process engine started",
		"queue_capacity", e.cfg.QueueCapacity,
		"workers", e.cfg.WorkerCount,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("process engine stopped", "reason", context.Cause(ctx))
			return
		case <-timer.C:
		}

		wait := e.iterate(ctx)
		timer.Reset(wait)
	}
}

// iterate runs one pass of the loop and returns how long to sleep before the next one.
func (e *Engine) iterate(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("process engine loop panicked", "panic", r, "stack", string(debug.Stack()))
			e.unhealthy.Store(true)
			wait = e.cfg.LoopInterval
		}
	}()

	if !e.checkGate(ctx) {
		e.unhealthy.Store(false)
		return e.disabledBackoff()
	}

	jobs := e.snapshot()
	if len(jobs) == 0 {
		e.idle.Store(true)
		e.unhealthy.Store(false)
		return e.cfg.IdleInterval
	}
	e.idle.Store(false)

	healthy := e.processJobs(ctx, jobs)
	e.unhealthy.Store(!healthy)
	return e.cfg.LoopInterval
}

// snapshot returns the admitted jobs in the working set.
func (e *Engine) snapshot() []*types.Job {
	e.mu.RLock()
	defer e.mu.RUnlock()

	jobs := make([]*types.Job, 0, len(e.inbox))
	for _, en := range e.inbox {
		if en.admitted {
			jobs = append(jobs, en.job)
		}
	}
	return jobs
}

// processJobs works through jobs with at most WorkerCount in flight and
// reports whether every job was handled without a panic or a storage error.
func (e *Engine) processJobs(ctx context.Context, jobs []*types.Job) bool {
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(e.cfg.WorkerCount)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("job processing panicked", "job", job.Key, "panic", r, "stack", string(debug.Stack()))
					failed.Store(true)
				}
			}()
			if !e.processJob(ctx, job) {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	return !failed.Load()
}

// processJob runs the job's ready tasks in order, stopping at the first task
// that is not ready or does not succeed. It returns false if any state change
// could not be persisted.
func (e *Engine) processJob(ctx context.Context, job *types.Job) bool {
	ok := true
	executed := false

	for _, task := range job.OrderedIncompleteTasks() {
		if ctx.Err() != nil {
			break
		}
		now := e.clock.Now()
		if !task.IsReadyForExecution(now) {
			break
		}

		e.setStatus(task, state.StatusProcessing)
		job.Status = state.StatusProcessing
		executed = true

		result := e.execute(ctx, task)
		now = e.clock.Now()

		switch result.Outcome {
		case types.OutcomeSuccess:
			e.setStatus(task, state.StatusCompleted)
			task.BackoffUntil = nil
			task.UpdatedAt = now
			ok = e.persistTask(task) && ok
		case types.OutcomeError:
			task.RequeueCount++
			strategy := e.retryStrategy(task)
			if strategy.CanRetry(task.RequeueCount) {
				until := now.Add(strategy.CalculateDelay(task.RequeueCount))
				e.setStatus(task, state.StatusRequeued)
				task.BackoffUntil = &until
				task.UpdatedAt = now
				e.logger.Warn("task failed, requeued",
					"job", job.Key, "task", task.ID, "attempt", task.RequeueCount,
					"retry_at", until, "message", result.Message)
				ok = e.persistTask(task) && ok
			} else {
				e.logger.Error("task failed, retries exhausted",
					"job", job.Key, "task", task.ID, "attempts", task.RequeueCount, "message", result.Message)
				ok = e.failTask(job, task, now) && ok
			}
		default:
			e.logger.Error("task failed permanently",
				"job", job.Key, "task", task.ID, "message", result.Message)
			ok = e.failTask(job, task, now) && ok
		}

		if !result.IsSuccess() {
			break
		}
	}

	// A pass that only found tasks waiting on their start time or backoff
	// leaves the job record untouched.
	if executed || (job.IsDone() && job.Status != state.StatusCompleted) {
		job.Status = job.OverallStatus()
		job.UpdatedAt = e.clock.Now()
		ok = e.persistJob(job) && ok
	}

	if job.IsDone() {
		e.release(job, true)
	}
	return ok
}

// execute runs a task with the task timeout. Stopping the engine does not
// cut a running task short; it only keeps the next one from starting.
func (e *Engine) execute(ctx context.Context, task *types.Task) (result types.ExecutionResult) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.DefaultTaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task execution panicked", "job", task.JobKey, "task", task.ID, "panic", r)
			result = types.Error(fmt.Sprintf("panic: %v", r))
		}
	}()

	start := time.Now()
	result = e.executor.Execute(taskCtx, task)
	e.logger.Debug("task executed",
		"job", task.JobKey, "task", task.ID, "kind", instructionKind(task),
		"outcome", result.Outcome.String(), "duration", time.Since(start))
	return result
}

func (e *Engine) retryStrategy(task *types.Task) backoff.Strategy {
	if task.RetryStrategy != nil {
		return *task.RetryStrategy
	}
	return e.cfg.DefaultTaskRetryStrategy
}

// failTask marks task as failed and cancels every task queued after it.
func (e *Engine) failTask(job *types.Job, task *types.Task, now time.Time) bool {
	e.setStatus(task, state.StatusFailed)
	task.BackoffUntil = nil
	task.UpdatedAt = now
	ok := e.persistTask(task)

	for _, other := range job.OrderedIncompleteTasks() {
		if other.ProcessingOrder <= task.ProcessingOrder {
			continue
		}
		e.setStatus(other, state.StatusCanceled)
		other.UpdatedAt = now
		ok = e.persistTask(other) && ok
	}
	return ok
}

func (e *Engine) setStatus(task *types.Task, to state.ItemStatus) {
	if !state.IsValidTransition(task.Status, to) {
		e.logger.Warn("unexpected task status transition",
			"job", task.JobKey, "task", task.ID, "from", task.Status, "to", to)
	}
	task.Status = to
}

func (e *Engine) persistTask(task *types.Task) bool {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := e.store.UpdateTask(ctx, task); err != nil {
		e.logger.Error("failed to persist task", "job", task.JobKey, "task", task.ID, "status", task.Status, "error", err)
		return false
	}
	return true
}

func (e *Engine) persistJob(job *types.Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := e.store.UpdateJob(ctx, job); err != nil {
		e.logger.Error("failed to persist job", "job", job.Key, "status", job.Status, "error", err)
		return false
	}
	return true
}

func instructionKind(task *types.Task) string {
	if task.Instruction == nil {
		return ""
	}
	return string(task.Instruction.Kind())
}
