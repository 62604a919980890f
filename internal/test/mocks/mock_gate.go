package mocks

import (
	"context"
	"sync/atomic"
)

// MockGate answers ShouldRun with ShouldRunFunc, or with Allow when it is nil.
type MockGate struct {
	ShouldRunFunc func(ctx context.Context) (bool, error)
	Allow         atomic.Bool
	calls         atomic.Int64
}

// NewMockGate returns a gate that initially answers allow.
func NewMockGate(allow bool) *MockGate {
	g := &MockGate{}
	g.Allow.Store(allow)
	return g
}

func (m *MockGate) ShouldRun(ctx context.Context) (bool, error) {
	m.calls.Add(1)
	if m.ShouldRunFunc != nil {
		return m.ShouldRunFunc(ctx)
	}
	return m.Allow.Load(), nil
}

func (m *MockGate) Calls() int64 {
	return m.calls.Load()
}
