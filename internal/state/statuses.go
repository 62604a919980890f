package state

type ItemStatus string

const (
	StatusEnqueued   ItemStatus = "enqueued"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusRequeued   ItemStatus = "requeued"
	StatusFailed     ItemStatus = "failed"
	StatusCanceled   ItemStatus = "canceled"
)

func (s ItemStatus) String() string {
	return string(s)
}

// IsDone reports whether the status is terminal.
func (s ItemStatus) IsDone() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

var AllStatuses = []ItemStatus{
	StatusEnqueued,
	StatusProcessing,
	StatusCompleted,
	StatusRequeued,
	StatusFailed,
	StatusCanceled,
}

// IncompleteStatuses are the statuses loaded back from storage by a recovery pass.
var IncompleteStatuses = []ItemStatus{
	StatusEnqueued,
	StatusProcessing,
	StatusRequeued,
}

type Transition struct {
	From ItemStatus
	To   ItemStatus
}

var ValidTransitions = []Transition{
	{From: StatusEnqueued, To: StatusProcessing},
	{From: StatusEnqueued, To: StatusCanceled},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusRequeued},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusProcessing, To: StatusCanceled},
	{From: StatusRequeued, To: StatusProcessing},
	{From: StatusRequeued, To: StatusCanceled},
}

func IsValidTransition(from, to ItemStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
