package config

import "fmt"

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Memory
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Memory:
		return "memory"
	}
	return "unknown"
}

func (d StorageDriver) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *StorageDriver) UnmarshalText(text []byte) error {
	switch string(text) {
	case "postgres":
		*d = Postgres
	case "memory":
		*d = Memory
	default:
		return fmt.Errorf("unknown storage driver %q", text)
	}
	return nil
}

// GateDriver selects how an instance decides whether it may process jobs.
type GateDriver int

const (
	// AlwaysRun is for single-instance deployments.
	AlwaysRun GateDriver = iota + 1
	PostgresLeader
	RedisLeader
)

func (d GateDriver) String() string {
	switch d {
	case AlwaysRun:
		return "always"
	case PostgresLeader:
		return "postgres"
	case RedisLeader:
		return "redis"
	}
	return "unknown"
}

func (d GateDriver) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *GateDriver) UnmarshalText(text []byte) error {
	switch string(text) {
	case "always":
		*d = AlwaysRun
	case "postgres":
		*d = PostgresLeader
	case "redis":
		*d = RedisLeader
	default:
		return fmt.Errorf("unknown gate driver %q", text)
	}
	return nil
}
