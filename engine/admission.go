package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/procengine/types"
)

// EnqueueJob admits a job. It blocks while the queue is full. Only an
// Accepted response leaves anything behind: the job is persisted and tracked
// in the working set until all its tasks are done.
func (e *Engine) EnqueueJob(ctx context.Context, req types.Request) types.Response {
	if err := req.Validate(); err != nil {
		return types.RejectedResponse(fmt.Sprintf("invalid request: %v", err))
	}
	if reason, dup := e.duplicateReason(req.Key, req.InstanceID); dup {
		return types.RejectedResponse(reason)
	}

	runCtx := e.runContext()
	if runCtx == nil || runCtx.Err() != nil {
		return types.RetryableRejection("engine is not running")
	}
	if !e.checkGate(ctx) {
		return types.RetryableRejection("engine is disabled on this instance")
	}

	job := types.NewJob(req, e.clock.Now())
	if reason, ok := e.reserve(job); !ok {
		return types.RejectedResponse(reason)
	}

	if err := e.acquireSlot(ctx, runCtx, job.Key); err != nil {
		e.release(job, false)
		if ctx.Err() != nil {
			return types.RetryableRejection("request canceled while waiting for a queue slot")
		}
		return types.RetryableRejection("engine stopping")
	}

	if err := e.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		e.logger.Error("failed to persist job", "job", job.Key, "error", err)
	}

	e.mu.Lock()
	if en, ok := e.inbox[job.Key]; ok && en.job == job {
		en.slot = true
		en.admitted = true
	}
	e.mu.Unlock()

	e.logger.Debug("job accepted", "job", job.Key, "instance_id", job.InstanceID, "tasks", len(job.Tasks))
	return types.AcceptedResponse()
}

func (e *Engine) duplicateReason(key, instanceID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.duplicateReasonLocked(key, instanceID)
}

func (e *Engine) duplicateReasonLocked(key, instanceID string) (string, bool) {
	if _, ok := e.inbox[key]; ok {
		return fmt.Sprintf("job %s is already queued", key), true
	}
	if other, ok := e.instances[instanceID]; ok {
		return fmt.Sprintf("instance %s already has job %s queued", instanceID, other), true
	}
	return "", false
}

// reserve claims the job key and instance so a concurrent duplicate is rejected.
func (e *Engine) reserve(job *types.Job) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if reason, dup := e.duplicateReasonLocked(job.Key, job.InstanceID); dup {
		return reason, false
	}
	e.inbox[job.Key] = &entry{job: job}
	e.instances[job.InstanceID] = job.Key
	return "", true
}

// release removes job from the working set and frees its queue slot.
// It is a no-op if the key now belongs to a different job.
func (e *Engine) release(job *types.Job, logDone bool) {
	e.mu.Lock()
	en, ok := e.inbox[job.Key]
	if ok && en.job == job {
		delete(e.inbox, job.Key)
		if e.instances[job.InstanceID] == job.Key {
			delete(e.instances, job.InstanceID)
		}
	} else {
		ok = false
	}
	e.mu.Unlock()

	if ok && en.slot {
		e.occupied.Add(-1)
		e.slots.Release(1)
	}
	if ok && logDone {
		e.logger.Debug("job done", "job", job.Key)
	}
}

// acquireSlot waits for a free queue slot until ctx is done or the engine stops.
func (e *Engine) acquireSlot(ctx, runCtx context.Context, key string) error {
	if e.slots.TryAcquire(1) {
		e.occupied.Add(1)
		return nil
	}

	e.logger.Warn("queue is full, waiting for a free slot", "job", key, "capacity", e.cfg.QueueCapacity)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	if err := e.slots.Acquire(waitCtx, 1); err != nil {
		return errors.Join(err, runCtx.Err())
	}
	e.occupied.Add(1)
	return nil
}
