// Package backoff provides the retry delay strategies used for task requeues,
// repository retries and should-run status checks.
// A Strategy is a plain value and safe for concurrent use.
package backoff

import (
	"fmt"
	"math"
	"time"
)

// Type selects how the delay grows with the attempt number.
type Type string

const (
	Constant    Type = "constant"
	Linear      Type = "linear"
	Exponential Type = "exponential"
)

// Strategy computes the delay before a retry attempt and decides whether
// another attempt is allowed at all.
type Strategy struct {
	Type     Type          `json:"type" yaml:"type"`
	Delay    time.Duration `json:"delay" yaml:"delay"`
	MaxDelay time.Duration `json:"max_delay,omitempty" yaml:"max_delay"`

	// MaxRetries caps the number of retries. Zero means unlimited.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries"`

	// Disabled marks the None strategy, which never retries.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled"`
}

// NewConstant always waits delay between attempts.
func NewConstant(delay time.Duration, maxRetries int) Strategy {
	return Strategy{Type: Constant, Delay: delay, MaxRetries: maxRetries}
}

// NewLinear waits delay*attempt, capped at maxDelay.
func NewLinear(delay, maxDelay time.Duration, maxRetries int) Strategy {
	return Strategy{Type: Linear, Delay: delay, MaxDelay: maxDelay, MaxRetries: maxRetries}
}

// NewExponential waits delay*2^(attempt-1), capped at maxDelay.
func NewExponential(delay, maxDelay time.Duration, maxRetries int) Strategy {
	return Strategy{Type: Exponential, Delay: delay, MaxDelay: maxDelay, MaxRetries: maxRetries}
}

// None never retries.
func None() Strategy {
	return Strategy{Type: Constant, Disabled: true}
}

// CanRetry reports whether retry number attempt (1-indexed) is allowed.
func (s Strategy) CanRetry(attempt int) bool {
	if s.Disabled {
		return false
	}
	if s.MaxRetries <= 0 {
		return true
	}
	return attempt <= s.MaxRetries
}

// CalculateDelay returns how long to wait before retry number attempt (1-indexed).
func (s Strategy) CalculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch s.Type {
	case Linear:
		d = s.Delay * time.Duration(attempt)
	case Exponential:
		f := float64(s.Delay) * math.Pow(2, float64(attempt-1))
		if f >= math.MaxInt64 {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(f)
		}
	default:
		d = s.Delay
	}

	if d < 0 {
		d = 0
	}
	if s.MaxDelay > 0 && d > s.MaxDelay {
		return s.MaxDelay
	}
	return d
}

// Validate checks the strategy for values that can never produce a sensible delay.
func (s Strategy) Validate() error {
	switch s.Type {
	case Constant, Linear, Exponential:
	default:
		return fmt.Errorf("unknown backoff type %q", s.Type)
	}
	if s.Delay < 0 || s.MaxDelay < 0 {
		return fmt.Errorf("backoff delays must not be negative")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if s.MaxDelay > 0 && s.MaxDelay < s.Delay {
		return fmt.Errorf("max delay %s is smaller than delay %s", s.MaxDelay, s.Delay)
	}
	return nil
}

func (s Strategy) String() string {
	if s.Disabled {
		return "none"
	}
	return fmt.Sprintf("%s(delay=%s, max=%s, retries=%d)", s.Type, s.Delay, s.MaxDelay, s.MaxRetries)
}
