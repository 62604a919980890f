package supervisor

import (
	"encoding/json"
	"net/http"

	"github.com/RezaEskandarii/procengine/types"
	"github.com/go-chi/chi/v5"
)

// StatusSource reports engine health.
type StatusSource interface {
	Status() types.HealthStatus
	InboxCount() int
}

type healthResponse struct {
	Status string `json:"status"`
	Inbox  int    `json:"inbox"`
}

// NewHealthRouter serves liveness and readiness probes.
// /health/live fails only once the loop has stopped; /health/ready also fails
// while the last loop iteration was unhealthy. A disabled instance is ready:
// it stands by for the gate to let it run.
func NewHealthRouter(src StatusSource) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		status := src.Status()
		writeHealth(w, status, src.InboxCount(), status.Has(types.HealthRunning))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		status := src.Status()
		ok := status.Has(types.HealthRunning) && !status.Has(types.HealthUnhealthy)
		writeHealth(w, status, src.InboxCount(), ok)
	})
	return r
}

func writeHealth(w http.ResponseWriter, status types.HealthStatus, inbox int, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: status.String(), Inbox: inbox})
}
