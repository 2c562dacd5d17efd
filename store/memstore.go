package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/workflow/engine"
)

// MemStore is an in-memory StateStore, for tests and short-lived processes
// that don't need crash survival.
type MemStore struct {
	mu     sync.RWMutex
	states map[string]map[string]*engine.WorkflowState // userID -> workflowID -> state
	clock  func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]map[string]*engine.WorkflowState), clock: time.Now}
}

func (m *MemStore) Create(ctx context.Context, state *engine.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byWorkflow, ok := m.states[state.UserID]
	if !ok {
		byWorkflow = make(map[string]*engine.WorkflowState)
		m.states[state.UserID] = byWorkflow
	}
	if _, exists := byWorkflow[state.WorkflowID]; exists {
		return ErrAlreadyActive
	}
	byWorkflow[state.WorkflowID] = state.Clone()
	return nil
}

func (m *MemStore) Get(ctx context.Context, userID, workflowID string) (*engine.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[userID][workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *MemStore) GetActiveForUser(ctx context.Context, userID string) (*engine.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.states[userID] {
		return st.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemStore) Update(ctx context.Context, state *engine.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byWorkflow, ok := m.states[state.UserID]
	if !ok {
		byWorkflow = make(map[string]*engine.WorkflowState)
		m.states[state.UserID] = byWorkflow
	}
	state.LastActiveAt = m.clock()
	byWorkflow[state.WorkflowID] = state.Clone()
	return nil
}

func (m *MemStore) Delete(ctx context.Context, userID, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states[userID], workflowID)
	return nil
}

func (m *MemStore) ListAll(ctx context.Context) ([]*engine.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.WorkflowState
	for _, byWorkflow := range m.states {
		for _, st := range byWorkflow {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}
