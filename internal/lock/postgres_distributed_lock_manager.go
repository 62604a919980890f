package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// PostgresDistributedLockManager uses session-level advisory locks. Each held
// lock keeps its own connection out of the pool, since the lock belongs to the
// session that took it.
type PostgresDistributedLockManager struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int]*sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:    db,
		conns: make(map[int]*sql.Conn),
	}
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.conns[lockID]; held {
		return nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.conns[lockID] = conn
	return nil
}

func (l *PostgresDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if conn, held := l.conns[lockID]; held {
		if err := conn.PingContext(ctx); err != nil {
			// The session is gone and the lock with it.
			_ = conn.Close()
			delete(l.conns, lockID)
			return false, fmt.Errorf("lost lock %d: %w", lockID, err)
		}
		return true, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.conns[lockID] = conn
	return true, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release(ctx, lockID)
}

func (l *PostgresDistributedLockManager) release(ctx context.Context, lockID int) error {
	conn, held := l.conns[lockID]
	if !held {
		return nil
	}
	delete(l.conns, lockID)

	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID)
	closeErr := conn.Close()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return closeErr
}

func (l *PostgresDistributedLockManager) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for id := range l.conns {
		errs = append(errs, l.release(context.Background(), id))
	}
	return errors.Join(errs...)
}
