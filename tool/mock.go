package tool

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scriptable Executor for tests and local demo hosts: each
// registered handler stands in for a real side effect (payment capture,
// CRM lookup, ...) the workflow author would otherwise wire up.
type Mock struct {
	mu       sync.Mutex
	handlers map[string]Func
	calls    []Call
}

// Call records one invocation observed by a Mock, for test assertions.
type Call struct {
	Name   string
	Params map[string]any
}

// NewMock returns an empty Mock. Register handlers with On before use;
// unregistered tool names resolve to a failing Result rather than a panic,
// mirroring how a real executor reports an unknown tool.
func NewMock() *Mock {
	return &Mock{handlers: make(map[string]Func)}
}

// On registers fn as the handler for name, replacing any prior handler.
func (m *Mock) On(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = fn
}

// OnSuccess is shorthand for a handler that always succeeds with data.
func (m *Mock) OnSuccess(name string, data map[string]any) {
	m.On(name, func(ctx context.Context, _ string, _ map[string]any) (Result, error) {
		return Result{Success: true, Data: data}, nil
	})
}

// OnError is shorthand for a handler that always reports a tool-level
// failure (Result.Success=false), not a transport/Go error.
func (m *Mock) OnError(name, message string) {
	m.On(name, func(ctx context.Context, _ string, _ map[string]any) (Result, error) {
		return Result{Success: false, Error: message}, nil
	})
}

func (m *Mock) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Name: name, Params: params})
	fn, ok := m.handlers[name]
	m.mu.Unlock()

	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("tool: no handler registered for %q", name)}, nil
	}
	return fn(ctx, name, params)
}

// Calls returns every invocation observed so far, in order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
