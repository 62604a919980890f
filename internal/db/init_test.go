package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/procengine/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLockManager struct {
	acquireErr error
	releaseErr error
	acquired   []int
	released   []int
}

func (m *mockLockManager) Acquire(ctx context.Context, lockID int) error {
	m.acquired = append(m.acquired, lockID)
	return m.acquireErr
}

func (m *mockLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	return m.acquireErr == nil, m.acquireErr
}

func (m *mockLockManager) Release(ctx context.Context, lockID int) error {
	m.released = append(m.released, lockID)
	return m.releaseErr
}

func (m *mockLockManager) Close() error { return nil }

var _ lock.DistributedLockManager = (*mockLockManager)(nil)

func TestReadSQLScripts(t *testing.T) {
	scripts, err := readSQLScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "001_jobs.sql", scripts[0].name)
	assert.Contains(t, scripts[1].body, "procengine_schema.tasks")
}

func TestInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{}

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS procengine_schema").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS procengine_schema.jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS procengine_schema.tasks").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Init(context.Background(), db, lockMgr))
	assert.Len(t, lockMgr.acquired, 1)
	assert.Equal(t, lockMgr.acquired, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_LockAcquireFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{acquireErr: errors.New("lock busy")}

	err = Init(context.Background(), db, lockMgr)
	assert.Error(t, err)
	assert.Empty(t, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_MigrationFailsReleasesLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{}

	mock.ExpectExec("CREATE SCHEMA").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = Init(context.Background(), db, lockMgr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_jobs.sql")
	assert.Len(t, lockMgr.released, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
