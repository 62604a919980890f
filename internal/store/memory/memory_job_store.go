// Package memory is a JobStore kept in process memory, for tests and
// single-instance deployments that can afford to lose jobs on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/procengine/internal/state"
	"github.com/RezaEskandarii/procengine/types"
)

type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[int64]*types.Job
	nextID int64
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[int64]*types.Job)}
}

func (s *MemoryJobStore) SaveJob(ctx context.Context, job *types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job.ID = s.nextID
	for _, t := range job.Tasks {
		t.JobID = job.ID
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) UpdateJob(ctx context.Context, job *types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %d (%s) not found", job.ID, job.Key)
	}
	stored.Status = job.Status
	stored.UpdatedAt = job.UpdatedAt
	return nil
}

func (s *MemoryJobStore) UpdateTask(ctx context.Context, task *types.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[task.JobID]
	if !ok {
		return fmt.Errorf("job %d (%s) not found", task.JobID, task.JobKey)
	}
	for i, t := range stored.Tasks {
		if t.ID == task.ID {
			stored.Tasks[i] = task.Clone()
			return nil
		}
	}
	return fmt.Errorf("task %s of job %d not found", task.ID, task.JobID)
}

func (s *MemoryJobStore) GetIncompleteJobs(ctx context.Context) ([]*types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Job
	for _, j := range s.jobs {
		if isIncomplete(j.Status) {
			c := j.Clone()
			sort.SliceStable(c.Tasks, func(a, b int) bool {
				return c.Tasks[a].ProcessingOrder < c.Tasks[b].ProcessingOrder
			})
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (s *MemoryJobStore) PurgeCompletedJobs(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, j := range s.jobs {
		if j.Status == state.StatusCompleted && j.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored jobs, finished ones included.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryJobStore) Close() error {
	return nil
}

func isIncomplete(status state.ItemStatus) bool {
	for _, st := range state.IncompleteStatuses {
		if st == status {
			return true
		}
	}
	return false
}
