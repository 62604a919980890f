package types

import (
	"sort"
	"time"

	"github.com/RezaEskandarii/procengine/internal/state"
)

// Actor identifies who the job acts on behalf of.
type Actor struct {
	UserIDOrOrgNumber string `json:"user_id_or_org_number"`
	Language          string `json:"language,omitempty"`
}

// Job is an ordered list of tasks tied to one workflow instance.
type Job struct {
	// ID is assigned by the store on SaveJob.
	ID         int64
	Key        string
	AppID      string
	InstanceID string
	Actor      Actor
	Tasks      []*Task
	Status     state.ItemStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderedIncompleteTasks returns the tasks that are not done, sorted by processing order.
func (j *Job) OrderedIncompleteTasks() []*Task {
	out := make([]*Task, 0, len(j.Tasks))
	for _, t := range j.Tasks {
		if !t.Status.IsDone() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].ProcessingOrder < out[b].ProcessingOrder
	})
	return out
}

// OverallStatus derives the job status from its tasks.
func (j *Job) OverallStatus() state.ItemStatus {
	for _, t := range j.Tasks {
		if !t.Status.IsDone() {
			return state.StatusRequeued
		}
	}
	return state.StatusCompleted
}

func (j *Job) IsDone() bool {
	return j.OverallStatus() == state.StatusCompleted
}

// Clone returns a deep copy of the job and its tasks.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Tasks = make([]*Task, len(j.Tasks))
	for i, t := range j.Tasks {
		c.Tasks[i] = t.Clone()
	}
	return &c
}
