package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/procengine/types"
)

// JobStore persists jobs and their tasks so they survive a restart.
type JobStore interface {
	// SaveJob inserts a new job with all its tasks and assigns job.ID and task.JobID.
	SaveJob(ctx context.Context, job *types.Job) error

	// UpdateJob writes the job's status and updated timestamp.
	UpdateJob(ctx context.Context, job *types.Job) error

	// UpdateTask writes the task's status, backoff and requeue count.
	UpdateTask(ctx context.Context, task *types.Task) error

	// GetIncompleteJobs returns every job that is not finished, oldest first,
	// with its tasks ordered by processing order.
	GetIncompleteJobs(ctx context.Context) ([]*types.Job, error)

	// PurgeCompletedJobs deletes finished jobs last updated before the given time
	// and returns how many were removed.
	PurgeCompletedJobs(ctx context.Context, before time.Time) (int64, error)

	// Close closes the database
	Close() error
}
