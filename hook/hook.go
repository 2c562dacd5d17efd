// Package hook implements the Host Hook Layer (spec.md §6 "Host hook
// contract"): translating a raw transport event into a ParsedUserAction via
// the event's surface adapter, then driving the engine with it. A host
// binary (cmd/workflowhost, or any embedder) owns the actual transport
// listener and hands events to a Dispatcher; the dispatcher owns none of
// the networking.
package hook

import (
	"context"
	"fmt"

	"github.com/flowmesh/workflow/engine"
	"github.com/flowmesh/workflow/surface"
)

// AdapterRegistry resolves a surfaceId to the surface.Adapter responsible
// for decoding its raw events, mirroring router.AdapterRegistry — the hook
// layer and the router each need adapter lookup for a different purpose
// (parsing vs. sending) so neither depends on the other's interface.
type AdapterRegistry interface {
	Adapter(surfaceID string) (surface.Adapter, bool)
}

// ActionEngine is the subset of *engine.Engine the dispatcher drives.
// Defined as an interface so tests can substitute a fake without standing
// up a real store/tool executor.
type ActionEngine interface {
	HandleAction(ctx context.Context, userID string, action surface.ParsedUserAction) (engine.Outcome, *engine.WorkflowState, error)
}

// Dispatcher routes raw transport events to the engine via the matching
// surface adapter.
type Dispatcher struct {
	engine   ActionEngine
	adapters AdapterRegistry
}

// New constructs a Dispatcher over eng, resolving adapters through
// adapters.
func New(eng ActionEngine, adapters AdapterRegistry) *Dispatcher {
	return &Dispatcher{engine: eng, adapters: adapters}
}

// Result reports what the dispatcher did with one raw event.
type Result struct {
	// Handled is true when this was a recognized workflow action that the
	// engine processed (successfully or not). Per spec.md §9's host hook
	// priority rule, the workflow hook fires first and signals "handled" by
	// this being true; the host must not also route the same raw event to
	// a generic chat-message hook when Handled is true.
	Handled bool
	Outcome engine.Outcome
	State   *engine.WorkflowState
}

// Dispatch decodes rawEvent via surfaceID's adapter and, if it resolves to
// a workflow action, drives the engine with it. It returns Handled=false,
// with a zero Outcome/State and a nil error, when rawEvent is not a
// workflow-relevant event for this user — the caller's other hook families
// (slash commands, generic chat handling) should process it instead.
func (d *Dispatcher) Dispatch(ctx context.Context, surfaceID, userID string, rawEvent any) (Result, error) {
	adapter, ok := d.adapters.Adapter(surfaceID)
	if !ok {
		return Result{}, fmt.Errorf("hook: no adapter registered for surface %q", surfaceID)
	}

	action, err := adapter.ParseAction(rawEvent)
	if err != nil {
		return Result{}, fmt.Errorf("hook: parse action: %w", err)
	}
	if action == nil {
		return Result{Handled: false}, nil
	}
	action.Surface.SurfaceID = surfaceID

	outcome, state, err := d.engine.HandleAction(ctx, userID, *action)
	if err != nil {
		return Result{Handled: true, Outcome: outcome, State: state}, err
	}
	return Result{Handled: true, Outcome: outcome, State: state}, nil
}
