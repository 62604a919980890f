package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/internal/state"
	"github.com/RezaEskandarii/procengine/internal/store"
	"github.com/RezaEskandarii/procengine/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.JobStore = (*PostgresJobStore)(nil)

var (
	jobColumns  = []string{"id", "key", "app_id", "instance_id", "actor_id", "actor_language", "status", "created_at", "updated_at"}
	taskColumns = []string{"job_id", "id", "processing_order", "instruction", "status", "start_time", "backoff_until",
		"retry_strategy", "requeue_count", "created_at", "updated_at"}
)

func newTestStore(t *testing.T) (*PostgresJobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresJobStore(db,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryStrategy(backoff.NewConstant(time.Millisecond, 2)),
	)
	return store, mock
}

func sampleJob(now time.Time) *types.Job {
	return types.NewJob(types.Request{
		Key:        "job-1",
		AppID:      "ttd/app",
		InstanceID: "50001/abc",
		Actor:      types.Actor{UserIDOrOrgNumber: "1337", Language: "nb"},
		Tasks: []types.TaskRequest{
			{ID: "t1", ProcessingOrder: 1, Instruction: types.MoveProcessForward{From: "A", To: "B"}},
			{ID: "t2", ProcessingOrder: 2, Instruction: types.ExecuteServiceTask{ServiceTaskID: "pdf"}},
		},
	}, now)
}

func TestNewPostgresJobStore(t *testing.T) {
	store, _ := newTestStore(t)
	require.NotNil(t, store)
}

func TestPostgresJobStore_SaveJob(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job := sampleJob(now)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO procengine_schema.jobs").
		WithArgs("job-1", "ttd/app", "50001/abc", "1337", "nb", state.StatusEnqueued, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec("INSERT INTO procengine_schema.tasks").
		WithArgs(int64(12), "t1", 1, sqlmock.AnyArg(), state.StatusEnqueued, nil, nil, nil, 0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO procengine_schema.tasks").
		WithArgs(int64(12), "t2", 2, sqlmock.AnyArg(), state.StatusEnqueued, nil, nil, nil, 0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveJob(context.Background(), job))
	assert.Equal(t, int64(12), job.ID)
	for _, task := range job.Tasks {
		assert.Equal(t, int64(12), task.JobID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_SaveJob_RollsBackOnTaskError(t *testing.T) {
	store, mock := newTestStore(t)
	job := sampleJob(time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO procengine_schema.jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO procengine_schema.tasks").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := store.SaveJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save job job-1")
	assert.Zero(t, job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_SaveJob_RetriesTransientError(t *testing.T) {
	store, mock := newTestStore(t)
	job := sampleJob(time.Now())
	job.Tasks = job.Tasks[:1]

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO procengine_schema.jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("INSERT INTO procengine_schema.tasks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveJob(context.Background(), job))
	assert.Equal(t, int64(3), job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateJob(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()
	job := &types.Job{ID: 4, Key: "job-4", Status: state.StatusCompleted, UpdatedAt: now}

	mock.ExpectExec("UPDATE procengine_schema.jobs").
		WithArgs(state.StatusCompleted, now, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateJob_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE procengine_schema.jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateJob(context.Background(), &types.Job{ID: 9, Key: "gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateTask(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()
	until := now.Add(time.Minute)
	task := &types.Task{ID: "t1", JobID: 4, JobKey: "job-4", Status: state.StatusRequeued,
		BackoffUntil: &until, RequeueCount: 2, UpdatedAt: now}

	mock.ExpectExec("UPDATE procengine_schema.tasks").
		WithArgs(state.StatusRequeued, until, 2, now, int64(4), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateTask(context.Background(), task))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateTask_GivesUpAfterRetries(t *testing.T) {
	store, mock := newTestStore(t)
	task := &types.Task{ID: "t1", JobID: 4}

	serialization := &pq.Error{Code: "40001"}
	for i := 0; i < 3; i++ {
		mock.ExpectExec("UPDATE procengine_schema.tasks").WillReturnError(serialization)
	}

	err := store.UpdateTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_GetIncompleteJobs(t *testing.T) {
	store, mock := newTestStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backoffUntil := created.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM procengine_schema.jobs").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(1, "job-1", "ttd/app", "50001/a", "1337", "nb", "requeued", created, created).
			AddRow(2, "job-2", "ttd/app", "50001/b", "42", "", "enqueued", created, created))

	mock.ExpectQuery("SELECT (.+) FROM procengine_schema.tasks").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(taskColumns).
			AddRow(1, "t1", 1, []byte(`{"kind":"move_process_forward","data":{"from":"A","to":"B"}}`),
				"completed", nil, nil, nil, 0, created, created).
			AddRow(1, "t2", 2, []byte(`{"kind":"execute_service_task","data":{"service_task_id":"pdf"}}`),
				"requeued", nil, backoffUntil, []byte(`{"type":"constant","delay":1000000000}`), 3, created, created).
			AddRow(2, "t1", 1, []byte(`not json`), "enqueued", nil, nil, nil, 0, created, created))

	jobs, err := store.GetIncompleteJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	first := jobs[0]
	assert.Equal(t, "job-1", first.Key)
	assert.Equal(t, state.StatusRequeued, first.Status)
	assert.Equal(t, types.Actor{UserIDOrOrgNumber: "1337", Language: "nb"}, first.Actor)
	require.Len(t, first.Tasks, 2)
	assert.Equal(t, types.MoveProcessForward{From: "A", To: "B"}, first.Tasks[0].Instruction)
	assert.Equal(t, "job-1", first.Tasks[1].JobKey)
	assert.Equal(t, 3, first.Tasks[1].RequeueCount)
	require.NotNil(t, first.Tasks[1].BackoffUntil)
	assert.True(t, backoffUntil.Equal(*first.Tasks[1].BackoffUntil))
	require.NotNil(t, first.Tasks[1].RetryStrategy)
	assert.Equal(t, time.Second, first.Tasks[1].RetryStrategy.Delay)

	require.Len(t, jobs[1].Tasks, 1)
	_, unknown := jobs[1].Tasks[0].Instruction.(types.UnknownInstruction)
	assert.True(t, unknown)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_GetIncompleteJobs_Empty(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM procengine_schema.jobs").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	jobs, err := store.GetIncompleteJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_PurgeCompletedJobs(t *testing.T) {
	store, mock := newTestStore(t)
	before := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM procengine_schema.jobs").
		WithArgs(state.StatusCompleted, before).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.PurgeCompletedJobs(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}
