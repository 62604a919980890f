package lock

import "context"

// AlwaysGate lets a single-instance deployment process unconditionally.
type AlwaysGate struct{}

func (AlwaysGate) ShouldRun(context.Context) (bool, error) { return true, nil }

// LeaderGate lets only the instance holding lockID process jobs.
type LeaderGate struct {
	locks  DistributedLockManager
	lockID int
}

func NewLeaderGate(locks DistributedLockManager, lockID int) *LeaderGate {
	return &LeaderGate{locks: locks, lockID: lockID}
}

func (g *LeaderGate) ShouldRun(ctx context.Context) (bool, error) {
	return g.locks.TryAcquire(ctx, g.lockID)
}

// Resign gives up leadership so another instance can take over.
func (g *LeaderGate) Resign(ctx context.Context) error {
	return g.locks.Release(ctx, g.lockID)
}
