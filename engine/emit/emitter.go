package emit

import "context"

// Emitter receives observability events from the engine, its definition
// watcher, and tool.Retrying. Implementations must not block the caller for long and
// must never panic; a broken observability backend should never take down a
// workflow.
type Emitter interface {
	// Emit sends a single event. Should return quickly; slow backends
	// should buffer internally and flush asynchronously.
	Emit(event Event)

	// EmitBatch sends a batch of events, in order, in one call. Returns an
	// error only for catastrophic, configuration-level failures — transient
	// per-event delivery problems should be swallowed and logged by the
	// implementation.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been sent or ctx expires.
	// Safe to call multiple times.
	Flush(ctx context.Context) error
}
