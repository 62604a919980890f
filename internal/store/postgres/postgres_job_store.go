package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/internal/state"
	"github.com/RezaEskandarii/procengine/types"
	"github.com/lib/pq"
)

const malformedInstruction types.InstructionKind = "malformed"

type PostgresJobStore struct {
	db     *sql.DB
	logger *slog.Logger
	retry  backoff.Strategy
}

type Option func(*PostgresJobStore)

func WithLogger(l *slog.Logger) Option {
	return func(s *PostgresJobStore) { s.logger = l }
}

// WithRetryStrategy controls how transient database errors are retried.
func WithRetryStrategy(r backoff.Strategy) Option {
	return func(s *PostgresJobStore) { s.retry = r }
}

func NewPostgresJobStore(db *sql.DB, opts ...Option) *PostgresJobStore {
	s := &PostgresJobStore{
		db:     db,
		logger: slog.Default(),
		retry:  backoff.NewExponential(100*time.Millisecond, 5*time.Second, 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type encodedTask struct {
	task          *types.Task
	instruction   []byte
	retryStrategy any
}

func (s *PostgresJobStore) SaveJob(ctx context.Context, job *types.Job) error {
	encoded := make([]encodedTask, 0, len(job.Tasks))
	for _, t := range job.Tasks {
		instruction, err := types.MarshalInstruction(t.Instruction)
		if err != nil {
			return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
		}
		var strategy any
		if t.RetryStrategy != nil {
			raw, err := json.Marshal(t.RetryStrategy)
			if err != nil {
				return fmt.Errorf("failed to encode retry strategy of task %s: %w", t.ID, err)
			}
			strategy = raw
		}
		encoded = append(encoded, encodedTask{task: t, instruction: instruction, retryStrategy: strategy})
	}

	var jobID int64
	err := s.withRetry(ctx, "save job", func(ctx context.Context) error {
		id, err := s.saveJob(ctx, job, encoded)
		jobID = id
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.Key, err)
	}

	job.ID = jobID
	for _, t := range job.Tasks {
		t.JobID = jobID
	}
	return nil
}

func (s *PostgresJobStore) saveJob(ctx context.Context, job *types.Job, tasks []encodedTask) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var jobID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO procengine_schema.jobs
			(key, app_id, instance_id, actor_id, actor_language, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		job.Key, job.AppID, job.InstanceID, job.Actor.UserIDOrOrgNumber, job.Actor.Language,
		job.Status, job.CreatedAt, job.UpdatedAt,
	).Scan(&jobID)
	if err != nil {
		return 0, err
	}

	for _, et := range tasks {
		t := et.task
		_, err = tx.ExecContext(ctx, `
			INSERT INTO procengine_schema.tasks
				(job_id, id, processing_order, instruction, status, start_time, backoff_until,
				 retry_strategy, requeue_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			jobID, t.ID, t.ProcessingOrder, et.instruction, t.Status, t.StartTime, t.BackoffUntil,
			et.retryStrategy, t.RequeueCount, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return jobID, nil
}

func (s *PostgresJobStore) UpdateJob(ctx context.Context, job *types.Job) error {
	return s.withRetry(ctx, "update job", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE procengine_schema.jobs
			SET status = $1, updated_at = $2
			WHERE id = $3`,
			job.Status, job.UpdatedAt, job.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update job %s: %w", job.Key, err)
		}
		return expectOneRow(res, "job "+job.Key)
	})
}

func (s *PostgresJobStore) UpdateTask(ctx context.Context, task *types.Task) error {
	return s.withRetry(ctx, "update task", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE procengine_schema.tasks
			SET status = $1, backoff_until = $2, requeue_count = $3, updated_at = $4
			WHERE job_id = $5 AND id = $6`,
			task.Status, task.BackoffUntil, task.RequeueCount, task.UpdatedAt, task.JobID, task.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task %s of job %s: %w", task.ID, task.JobKey, err)
		}
		return expectOneRow(res, "task "+task.ID)
	})
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s not found", what)
	}
	return nil
}

func (s *PostgresJobStore) GetIncompleteJobs(ctx context.Context) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.withRetry(ctx, "get incomplete jobs", func(ctx context.Context) error {
		var err error
		jobs, err = s.getIncompleteJobs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load incomplete jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresJobStore) getIncompleteJobs(ctx context.Context) ([]*types.Job, error) {
	statuses := make([]string, 0, len(state.IncompleteStatuses))
	for _, st := range state.IncompleteStatuses {
		statuses = append(statuses, st.String())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, app_id, instance_id, actor_id, actor_language, status, created_at, updated_at
		FROM procengine_schema.jobs
		WHERE status = ANY($1)
		ORDER BY created_at ASC, id ASC`,
		pq.Array(statuses),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*types.Job
	byID := make(map[int64]*types.Job)
	ids := make([]int64, 0)
	for rows.Next() {
		j := &types.Job{}
		if err := rows.Scan(
			&j.ID, &j.Key, &j.AppID, &j.InstanceID, &j.Actor.UserIDOrOrgNumber, &j.Actor.Language,
			&j.Status, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
		byID[j.ID] = j
		ids = append(ids, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	taskRows, err := s.db.QueryContext(ctx, `
		SELECT job_id, id, processing_order, instruction, status, start_time, backoff_until,
		       retry_strategy, requeue_count, created_at, updated_at
		FROM procengine_schema.tasks
		WHERE job_id = ANY($1)
		ORDER BY job_id ASC, processing_order ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer taskRows.Close()

	for taskRows.Next() {
		var (
			t            types.Task
			instruction  []byte
			startTime    sql.NullTime
			backoffUntil sql.NullTime
			strategy     []byte
		)
		if err := taskRows.Scan(
			&t.JobID, &t.ID, &t.ProcessingOrder, &instruction, &t.Status, &startTime, &backoffUntil,
			&strategy, &t.RequeueCount, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}

		job, ok := byID[t.JobID]
		if !ok {
			continue
		}
		t.JobKey = job.Key
		t.AppID = job.AppID
		t.InstanceID = job.InstanceID
		t.Actor = job.Actor
		if startTime.Valid {
			st := startTime.Time
			t.StartTime = &st
		}
		if backoffUntil.Valid {
			bu := backoffUntil.Time
			t.BackoffUntil = &bu
		}
		if len(strategy) > 0 {
			var rs backoff.Strategy
			if err := json.Unmarshal(strategy, &rs); err != nil {
				s.logger.Warn("ignoring unreadable task retry strategy", "job", job.Key, "task", t.ID, "error", err)
			} else {
				t.RetryStrategy = &rs
			}
		}

		decoded, err := types.UnmarshalInstruction(instruction)
		if err != nil {
			s.logger.Error("unreadable task instruction", "job", job.Key, "task", t.ID, "error", err)
			decoded = types.UnknownInstruction{Name: malformedInstruction, Data: instruction}
		}
		t.Instruction = decoded

		job.Tasks = append(job.Tasks, &t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *PostgresJobStore) PurgeCompletedJobs(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "purge completed jobs", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM procengine_schema.jobs
			WHERE status = $1 AND updated_at < $2`,
			state.StatusCompleted, before,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	return n, nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}
