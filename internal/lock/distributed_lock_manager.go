package lock

import "context"

// DistributedLockManager coordinates exclusive work between process instances.
// Lock ids are the values in internal/constants.
type DistributedLockManager interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, lockID int) error
	// TryAcquire takes the lock if it is free and reports whether this instance holds it.
	// Calling it again while holding the lock confirms the hold.
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
	// Close releases every lock still held.
	Close() error
}
