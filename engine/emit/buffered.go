package emit

import (
	"context"
	"sync"
)

// BufferedEmitter keeps every event in memory, keyed by "userID:workflowID".
// It exists for tests and for short-lived debug sessions that want to
// inspect exactly what the engine did after the fact; it is not meant for
// long-running production processes since nothing ever evicts old entries.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func key(userID, workflowID string) string { return userID + ":" + workflowID }

func (b *BufferedEmitter) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(e.UserID, e.WorkflowID)
	b.events[k] = append(b.events[k], e)
}

func (b *BufferedEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.Emit(e)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events recorded for (userID, workflowID), in
// emission order.
func (b *BufferedEmitter) History(userID, workflowID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.events[key(userID, workflowID)]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Clear drops recorded history for (userID, workflowID), or everything if
// both are empty.
func (b *BufferedEmitter) Clear(userID, workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if userID == "" && workflowID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, key(userID, workflowID))
}
