// Package store provides durable, per-user persistence for engine.WorkflowState,
// with a filesystem-backed implementation as the primary target (spec.md
// §6's "<data>/workflows/<userId>.json" layout) and SQL-backed alternates
// for deployments that already run a database.
package store

import (
	"context"

	"github.com/flowmesh/workflow/engine"
)

// ErrNotFound is returned by Get/LoadLatest-style lookups that find nothing.
// It is engine.ErrStateNotFound under another name: the engine package
// defines the StateStore contract's sentinels since it cannot import this
// package (store already depends on engine for WorkflowState), and callers
// that only ever see a store.StateStore still want the familiar name here.
var ErrNotFound = engine.ErrStateNotFound

// ErrAlreadyActive is returned by Create when an active state already exists
// for (userID, workflowID); callers must Delete first.
var ErrAlreadyActive = engine.ErrStateAlreadyActive

// StateStore is the persistence contract the engine depends on. A single
// user may have states for several distinct workflowIds concurrently, but
// at most one active state per (userID, workflowID), and — per spec.md §3 —
// at most one active state for the user at all; enforcing the latter is the
// engine's job (it calls GetActiveForUser before StartWorkflow), not the
// store's.
type StateStore interface {
	// Create persists a brand new state. Returns ErrAlreadyActive if one
	// already exists for (state.UserID, state.WorkflowID).
	Create(ctx context.Context, state *engine.WorkflowState) error

	// Get returns the state for (userID, workflowID), or ErrNotFound.
	Get(ctx context.Context, userID, workflowID string) (*engine.WorkflowState, error)

	// GetActiveForUser returns the user's sole active state across every
	// workflow, or ErrNotFound if they have none.
	GetActiveForUser(ctx context.Context, userID string) (*engine.WorkflowState, error)

	// Update overwrites a previously created state atomically, refreshing
	// LastActiveAt to the store's clock.
	Update(ctx context.Context, state *engine.WorkflowState) error

	// Delete removes the state for (userID, workflowID). Idempotent: it is
	// not an error to delete a state that doesn't exist.
	Delete(ctx context.Context, userID, workflowID string) error

	// ListAll returns every currently persisted state, used by the TTL
	// sweeper and by startup recovery.
	ListAll(ctx context.Context) ([]*engine.WorkflowState, error)
}
