package supervisor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RezaEskandarii/procengine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h http.Handler, path string) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestHealthRouter(t *testing.T) {
	tests := []struct {
		name      string
		status    types.HealthStatus
		wantLive  int
		wantReady int
	}{
		{"running", types.HealthRunning, http.StatusOK, http.StatusOK},
		{"running and disabled", types.HealthRunning | types.HealthDisabled, http.StatusOK, http.StatusOK},
		{"unhealthy", types.HealthRunning | types.HealthUnhealthy, http.StatusOK, http.StatusServiceUnavailable},
		{"stopped", types.HealthNone, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{}
			eng.set(tt.status)
			h := NewHealthRouter(eng)

			code, body := probe(t, h, "/health/live")
			assert.Equal(t, tt.wantLive, code)
			assert.Equal(t, tt.status.String(), body.Status)

			code, _ = probe(t, h, "/health/ready")
			assert.Equal(t, tt.wantReady, code)
		})
	}
}

func TestHealthRouter_UnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthRouter(&fakeEngine{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
