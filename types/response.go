package types

type ResponseStatus string

const (
	Accepted ResponseStatus = "accepted"
	Rejected ResponseStatus = "rejected"
)

// Response is the outcome of submitting a Request.
// Retryable marks a rejection caused by the engine's state rather than the
// request itself; submitting the same request later, or elsewhere, may succeed.
type Response struct {
	Status    ResponseStatus `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

func AcceptedResponse() Response {
	return Response{Status: Accepted}
}

func RejectedResponse(reason string) Response {
	return Response{Status: Rejected, Reason: reason}
}

func RetryableRejection(reason string) Response {
	return Response{Status: Rejected, Reason: reason, Retryable: true}
}

func (r Response) IsAccepted() bool { return r.Status == Accepted }
