package constants

// Advisory lock ids shared by every instance talking to the same database.
const (
	MigrationLock = iota + 1
	ProcessEngineLock
	RetentionLock
)

var Locks = []int{
	MigrationLock,
	ProcessEngineLock,
	RetentionLock,
}

// API key header sent on app callbacks.
const APIKeyHeader = "X-Api-Key"
