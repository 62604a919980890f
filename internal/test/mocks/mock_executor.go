package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/procengine/types"
)

// MockExecutor runs ExecuteFunc and records the task of every call.
// Without ExecuteFunc every task succeeds.
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, task *types.Task) types.ExecutionResult

	mu    sync.Mutex
	calls []*types.Task
}

func (m *MockExecutor) Execute(ctx context.Context, task *types.Task) types.ExecutionResult {
	m.mu.Lock()
	m.calls = append(m.calls, task.Clone())
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, task)
	}
	return types.Success()
}

// Calls returns copies of the executed tasks in call order.
func (m *MockExecutor) Calls() []*types.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Task(nil), m.calls...)
}
