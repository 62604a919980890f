package engine

import (
	"context"
	"time"

	"github.com/RezaEskandarii/procengine/internal/state"
)

// checkGate asks the gate whether to run and records the answer. When the
// answer turns to yes after a no, or on the first yes since start, jobs left
// unfinished in storage are merged into the working set. A failed load is
// retried on the next yes.
func (e *Engine) checkGate(ctx context.Context) bool {
	e.gateMu.Lock()
	defer e.gateMu.Unlock()

	ok, err := e.gate.ShouldRun(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		e.logger.Warn("should-run check failed", "error", err)
		ok = false
	}

	previous, hadPrevious := e.outcomes.Latest()
	e.outcomes.Add(ok)
	e.disabled.Store(!ok)

	if ok && (!hadPrevious || !previous) {
		e.pendingRecovery = true
	}
	if ok && e.pendingRecovery {
		e.pendingRecovery = !e.recoverJobs(ctx)
	}
	if !ok && hadPrevious && previous {
		e.logger.Info("process engine disabled on this instance")
	}
	return ok
}

func (e *Engine) recoverJobs(ctx context.Context) bool {
	jobs, err := e.store.GetIncompleteJobs(ctx)
	if err != nil {
		e.logger.Error("failed to load incomplete jobs", "error", err)
		return false
	}

	added := 0
	e.mu.Lock()
	for _, job := range jobs {
		if _, tracked := e.inbox[job.Key]; tracked {
			continue
		}
		// Processing is never persisted on purpose, but a row written by an
		// older build may still carry it.
		for _, t := range job.Tasks {
			if t.Status == state.StatusProcessing {
				t.Status = state.StatusRequeued
			}
		}

		slot := e.slots.TryAcquire(1)
		if slot {
			e.occupied.Add(1)
		}
		e.inbox[job.Key] = &entry{job: job, slot: slot, admitted: true}
		if _, taken := e.instances[job.InstanceID]; !taken {
			e.instances[job.InstanceID] = job.Key
		}
		added++
	}
	e.mu.Unlock()

	e.logger.Info("recovered incomplete jobs", "loaded", len(jobs), "added", added)
	return true
}

// disabledBackoff is how long the loop waits after a "no" from the gate.
// It grows once the gate has said no at least twice in a row.
func (e *Engine) disabledBackoff() time.Duration {
	streak := e.outcomes.ConsecutiveFalseCount()
	if streak < 2 {
		return e.cfg.IdleInterval
	}
	return e.cfg.StatusCheckBackoff.CalculateDelay(streak)
}
