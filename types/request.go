package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/custom_errors"
	"github.com/RezaEskandarii/procengine/internal/state"
)

// Request is a caller's submission of a job.
type Request struct {
	Key        string        `json:"key"`
	AppID      string        `json:"app_id"`
	InstanceID string        `json:"instance_id"`
	Actor      Actor         `json:"actor"`
	Tasks      []TaskRequest `json:"tasks"`
}

// TaskRequest describes one task of a Request.
type TaskRequest struct {
	ID              string            `json:"id"`
	ProcessingOrder int               `json:"processing_order"`
	Instruction     Instruction       `json:"-"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	RetryStrategy   *backoff.Strategy `json:"retry_strategy,omitempty"`
}

type taskRequestJSON struct {
	ID              string            `json:"id"`
	ProcessingOrder int               `json:"processing_order"`
	Instruction     *InstructionJSON  `json:"instruction"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	RetryStrategy   *backoff.Strategy `json:"retry_strategy,omitempty"`
}

func (r TaskRequest) MarshalJSON() ([]byte, error) {
	out := taskRequestJSON{
		ID:              r.ID,
		ProcessingOrder: r.ProcessingOrder,
		StartTime:       r.StartTime,
		RetryStrategy:   r.RetryStrategy,
	}
	if r.Instruction != nil {
		out.Instruction = &InstructionJSON{Instruction: r.Instruction}
	}
	return json.Marshal(out)
}

func (r *TaskRequest) UnmarshalJSON(raw []byte) error {
	var in taskRequestJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	r.ID = in.ID
	r.ProcessingOrder = in.ProcessingOrder
	r.StartTime = in.StartTime
	r.RetryStrategy = in.RetryStrategy
	r.Instruction = nil
	if in.Instruction != nil {
		r.Instruction = in.Instruction.Instruction
	}
	return nil
}

// Validate reports every problem with the request at once.
func (r Request) Validate() error {
	errs := &custom_errors.ValidationError{}
	if r.Key == "" {
		errs.Addf("job key is required")
	}
	if r.AppID == "" {
		errs.Addf("app id is required")
	}
	if r.InstanceID == "" {
		errs.Addf("instance id is required")
	}
	if len(r.Tasks) == 0 {
		errs.Addf("at least one task is required")
	}

	ids := make(map[string]struct{}, len(r.Tasks))
	orders := make(map[int]struct{}, len(r.Tasks))
	for i, t := range r.Tasks {
		if t.ID == "" {
			errs.Addf("task %d: id is required", i)
		} else if _, dup := ids[t.ID]; dup {
			errs.Addf("task %d: duplicate id %q", i, t.ID)
		} else {
			ids[t.ID] = struct{}{}
		}

		if _, dup := orders[t.ProcessingOrder]; dup {
			errs.Addf("task %d: duplicate processing order %d", i, t.ProcessingOrder)
		}
		orders[t.ProcessingOrder] = struct{}{}

		if t.Instruction == nil {
			errs.Addf("task %d: instruction is required", i)
		} else if err := t.Instruction.Validate(); err != nil {
			errs.Add(fmt.Errorf("task %d: %w", i, err))
		}

		if t.RetryStrategy != nil {
			if err := t.RetryStrategy.Validate(); err != nil {
				errs.Add(fmt.Errorf("task %d: %w", i, err))
			}
		}
	}
	return errs.ErrOrNil()
}

// NewJob builds an Enqueued job from a validated request.
func NewJob(r Request, now time.Time) *Job {
	job := &Job{
		Key:        r.Key,
		AppID:      r.AppID,
		InstanceID: r.InstanceID,
		Actor:      r.Actor,
		Status:     state.StatusEnqueued,
		CreatedAt:  now,
		UpdatedAt:  now,
		Tasks:      make([]*Task, 0, len(r.Tasks)),
	}
	for _, tr := range r.Tasks {
		t := &Task{
			ID:              tr.ID,
			JobKey:          r.Key,
			AppID:           r.AppID,
			InstanceID:      r.InstanceID,
			Actor:           r.Actor,
			ProcessingOrder: tr.ProcessingOrder,
			Instruction:     tr.Instruction,
			Status:          state.StatusEnqueued,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if tr.StartTime != nil {
			st := *tr.StartTime
			t.StartTime = &st
		}
		if tr.RetryStrategy != nil {
			rs := *tr.RetryStrategy
			t.RetryStrategy = &rs
		}
		job.Tasks = append(job.Tasks, t)
	}
	return job
}
