package backoff_test

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/stretchr/testify/assert"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	s := backoff.NewConstant(5*time.Second, 0)
	for attempt := 1; attempt <= 10; attempt++ {
		assert.Equal(t, 5*time.Second, s.CalculateDelay(attempt))
	}
}

func TestLinear_GrowsAndCaps(t *testing.T) {
	s := backoff.NewLinear(time.Second, 5*time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{5, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.CalculateDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	s := backoff.NewExponential(time.Second, time.Minute, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{5000, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.CalculateDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCanRetry(t *testing.T) {
	limited := backoff.NewExponential(time.Second, time.Minute, 3)
	assert.True(t, limited.CanRetry(1))
	assert.True(t, limited.CanRetry(3))
	assert.False(t, limited.CanRetry(4))

	unlimited := backoff.NewConstant(time.Second, 0)
	assert.True(t, unlimited.CanRetry(1_000_000))

	assert.False(t, backoff.None().CanRetry(1))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, backoff.NewLinear(time.Second, time.Minute, 2).Validate())
	assert.Error(t, backoff.Strategy{Type: "fibonacci", Delay: time.Second}.Validate())
	assert.Error(t, backoff.NewExponential(time.Minute, time.Second, 0).Validate())
	assert.Error(t, backoff.NewConstant(-time.Second, 0).Validate())
	assert.Error(t, backoff.NewConstant(time.Second, -1).Validate())
}
