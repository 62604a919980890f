package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/RezaEskandarii/procengine/types"
)

// MockJobStore is a mock implementation of store.JobStore. Every call is
// recorded with a copy of its argument so tests can assert on the state that
// was written at the time of the call.
type MockJobStore struct {
	SaveJobFunc            func(ctx context.Context, job *types.Job) error
	UpdateJobFunc          func(ctx context.Context, job *types.Job) error
	UpdateTaskFunc         func(ctx context.Context, task *types.Task) error
	GetIncompleteJobsFunc  func(ctx context.Context) ([]*types.Job, error)
	PurgeCompletedJobsFunc func(ctx context.Context, before time.Time) (int64, error)
	CloseFunc              func() error

	mu          sync.Mutex
	savedJobs   []*types.Job
	jobUpdates  []*types.Job
	taskUpdates []*types.Task
	nextID      int64
}

func (m *MockJobStore) SaveJob(ctx context.Context, job *types.Job) error {
	if m.SaveJobFunc != nil {
		if err := m.SaveJobFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == 0 {
		m.nextID++
		job.ID = m.nextID
		for _, t := range job.Tasks {
			t.JobID = job.ID
		}
	}
	m.savedJobs = append(m.savedJobs, job.Clone())
	return nil
}

func (m *MockJobStore) UpdateJob(ctx context.Context, job *types.Job) error {
	m.mu.Lock()
	m.jobUpdates = append(m.jobUpdates, job.Clone())
	m.mu.Unlock()
	if m.UpdateJobFunc != nil {
		return m.UpdateJobFunc(ctx, job)
	}
	return nil
}

func (m *MockJobStore) UpdateTask(ctx context.Context, task *types.Task) error {
	m.mu.Lock()
	m.taskUpdates = append(m.taskUpdates, task.Clone())
	m.mu.Unlock()
	if m.UpdateTaskFunc != nil {
		return m.UpdateTaskFunc(ctx, task)
	}
	return nil
}

func (m *MockJobStore) GetIncompleteJobs(ctx context.Context) ([]*types.Job, error) {
	if m.GetIncompleteJobsFunc != nil {
		return m.GetIncompleteJobsFunc(ctx)
	}
	return nil, nil
}

func (m *MockJobStore) PurgeCompletedJobs(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeCompletedJobsFunc != nil {
		return m.PurgeCompletedJobsFunc(ctx, before)
	}
	return 0, nil
}

func (m *MockJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// SavedJobs returns copies of the jobs passed to SaveJob.
func (m *MockJobStore) SavedJobs() []*types.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Job(nil), m.savedJobs...)
}

// JobUpdates returns copies of the jobs passed to UpdateJob, in call order.
func (m *MockJobStore) JobUpdates() []*types.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Job(nil), m.jobUpdates...)
}

// TaskUpdates returns copies of the tasks passed to UpdateTask, in call order.
func (m *MockJobStore) TaskUpdates() []*types.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Task(nil), m.taskUpdates...)
}

var _ store.JobStore = (*MockJobStore)(nil)
