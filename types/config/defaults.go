package config

import (
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
)

const (
	DefaultQueueCapacity       = 1000
	DefaultWorkerCount         = 5
	DefaultLoopInterval        = 100 * time.Millisecond
	DefaultIdleInterval        = 500 * time.Millisecond
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultMaxUnhealthyChecks  = 100
	DefaultTaskTimeout         = 100 * time.Second
	DefaultStorageDriver       = Postgres
	DefaultGateDriver          = AlwaysRun
	DefaultRetentionSchedule   = "@daily"
	DefaultRetentionPeriod     = 30 * 24 * time.Hour
	DefaultLockTTL             = 30 * time.Second
)

// DefaultTaskRetryStrategy applies to tasks that do not carry their own.
func DefaultTaskRetryStrategy() backoff.Strategy {
	return backoff.NewExponential(time.Second, 5*time.Minute, 25)
}

// DefaultStatusCheckBackoff paces the loop while the should-run gate says no.
func DefaultStatusCheckBackoff() backoff.Strategy {
	return backoff.NewExponential(time.Second, time.Minute, 0)
}
