package engine

import (
	"context"
	"errors"
)

// ErrStateNotFound is returned by StateStore lookups that find nothing.
var ErrStateNotFound = errors.New("engine: state not found")

// ErrStateAlreadyActive is returned by StateStore.Create when an active
// state already exists for (userID, workflowID); callers must Delete first.
var ErrStateAlreadyActive = errors.New("engine: active state already exists")

// StateStore is the persistence contract the engine depends on, satisfied
// structurally by package store's FileStore/MemStore/SQLiteStore/MySQLStore
// without the engine package importing store (store already depends on
// engine for the WorkflowState type it persists).
type StateStore interface {
	// Create persists a brand new state. Returns ErrStateAlreadyActive if
	// one already exists for (state.UserID, state.WorkflowID).
	Create(ctx context.Context, state *WorkflowState) error

	// Get returns the state for (userID, workflowID), or ErrStateNotFound.
	Get(ctx context.Context, userID, workflowID string) (*WorkflowState, error)

	// GetActiveForUser returns the user's sole active state across every
	// workflow, or ErrStateNotFound if they have none.
	GetActiveForUser(ctx context.Context, userID string) (*WorkflowState, error)

	// Update overwrites a previously created state atomically, refreshing
	// LastActiveAt to the store's clock.
	Update(ctx context.Context, state *WorkflowState) error

	// Delete removes the state for (userID, workflowID). Idempotent.
	Delete(ctx context.Context, userID, workflowID string) error

	// ListAll returns every currently persisted state, used by the TTL
	// sweeper and by startup recovery.
	ListAll(ctx context.Context) ([]*WorkflowState, error)
}
