// Package emit provides pluggable observability for workflow execution: the
// engine, its definition Watcher, and tool.Retrying all emit through the
// same Emitter interface, letting a host swap stdout logging for OpenTelemetry tracing
// without touching business logic.
package emit

// Event is one observability record produced while processing a workflow
// action, an auto-advance hop, or a tool retry attempt.
type Event struct {
	// UserID and WorkflowID identify which (user, workflow) instance this
	// event belongs to. Both are empty for process-level events (e.g. a
	// registry reload).
	UserID     string
	WorkflowID string

	// StepID names the step involved, empty for events that aren't
	// step-scoped (e.g. "workflow_started").
	StepID string

	// Msg is a short machine-matchable event name, e.g. "step_advanced",
	// "tool_error", "lock_contention", "tool_retry".
	Msg string

	// Meta carries event-specific structured data. Keys in use: "error",
	// "path", "tool", "attempt", "op".
	Meta map[string]any
}
