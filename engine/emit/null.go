package emit

import "context"

// NullEmitter discards every event. It is the default when a host doesn't
// care about observability, and is handy in unit tests that exercise engine
// logic without asserting on emitted events.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that does nothing.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
