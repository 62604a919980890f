package types

import "strings"

// HealthStatus is a set of flags describing the engine's current condition.
type HealthStatus uint8

const (
	HealthRunning HealthStatus = 1 << iota
	HealthUnhealthy
	HealthQueueFull
	HealthDisabled
	HealthIdle
)

// HealthNone means the engine is not running and nothing is wrong.
const HealthNone HealthStatus = 0

func (h HealthStatus) Has(flag HealthStatus) bool {
	return h&flag == flag && flag != 0
}

func (h HealthStatus) String() string {
	if h == HealthNone {
		return "none"
	}
	names := []struct {
		flag HealthStatus
		name string
	}{
		{HealthRunning, "running"},
		{HealthUnhealthy, "unhealthy"},
		{HealthQueueFull, "queue_full"},
		{HealthDisabled, "disabled"},
		{HealthIdle, "idle"},
	}
	var parts []string
	for _, n := range names {
		if h.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
