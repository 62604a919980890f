package types

type ExecutionOutcome int

const (
	OutcomeSuccess ExecutionOutcome = iota
	// OutcomeError is a failure that may be retried.
	OutcomeError
	// OutcomeFatal is a failure that must not be retried.
	OutcomeFatal
)

func (o ExecutionOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// ExecutionResult reports what happened when a task's instruction ran.
type ExecutionResult struct {
	Outcome ExecutionOutcome
	Message string
}

func Success() ExecutionResult { return ExecutionResult{Outcome: OutcomeSuccess} }

func Error(msg string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeError, Message: msg}
}

func Fatal(msg string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeFatal, Message: msg}
}

func (r ExecutionResult) IsSuccess() bool { return r.Outcome == OutcomeSuccess }
