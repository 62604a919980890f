package types

import (
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/internal/state"
)

// Task is one step of a Job. Tasks of a job run strictly in ProcessingOrder.
type Task struct {
	ID              string
	JobID           int64
	JobKey          string
	AppID           string
	InstanceID      string
	Actor           Actor
	ProcessingOrder int
	Instruction     Instruction
	StartTime       *time.Time
	BackoffUntil    *time.Time
	RetryStrategy   *backoff.Strategy
	RequeueCount    int
	Status          state.ItemStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsReadyForExecution reports whether neither StartTime nor BackoffUntil lies after now.
func (t *Task) IsReadyForExecution(now time.Time) bool {
	if t.StartTime != nil && t.StartTime.After(now) {
		return false
	}
	if t.BackoffUntil != nil && t.BackoffUntil.After(now) {
		return false
	}
	return true
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.BackoffUntil != nil {
		bu := *t.BackoffUntil
		c.BackoffUntil = &bu
	}
	if t.RetryStrategy != nil {
		rs := *t.RetryStrategy
		c.RetryStrategy = &rs
	}
	return &c
}
