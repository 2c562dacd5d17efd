package engine

import "time"

// StepData is what the engine records in WorkflowState.Data after a step is
// answered: either free text (text-input) or a selection (choice/confirm/
// multi-choice), never both.
type StepData struct {
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input,omitempty"`
	Selection []string  `json:"selection,omitempty"`
}

// SelectionSingle returns the first selected value, or "" if none. It's a
// convenience for single-choice/confirm steps where Selection always holds
// exactly one element.
func (d StepData) SelectionSingle() string {
	if len(d.Selection) == 0 {
		return ""
	}
	return d.Selection[0]
}

// WorkflowState is the durable, per-(user, workflow) instance of an
// in-progress workflow. It is created by startWorkflow, mutated only by the
// engine under the per-(user, workflow) lock, and deleted on completion,
// cancellation, or TTL expiry.
type WorkflowState struct {
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId"`
	CurrentStep string `json:"currentStep"`

	// StepHistory never contains CurrentStep; it is the ordered trail of
	// steps visited before the current one, used by the "back" meta-action
	// and by progress computation.
	StepHistory []string `json:"stepHistory"`

	Data map[string]StepData `json:"data"`

	StartedAt    time.Time `json:"startedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ExpiresAt    time.Time `json:"expiresAt"`

	OriginSurface string `json:"originSurface"`
	LastSurface   string `json:"lastSurface"`

	// LastMessageIDs maps surfaceId -> the most recent message this
	// workflow rendered on that surface, opaque to the engine.
	LastMessageIDs map[string]string `json:"lastMessageIds"`
}

// IsExpired reports whether the state has passed its TTL as of now.
func (s *WorkflowState) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// pushHistory moves CurrentStep onto StepHistory and installs next as the
// new CurrentStep, clearing nothing — callers that need to clear Data for a
// popped step (the "back" meta-action) do so explicitly.
func (s *WorkflowState) pushHistory(next string) {
	s.StepHistory = append(s.StepHistory, s.CurrentStep)
	s.CurrentStep = next
}

// popHistory reverses pushHistory: the last history entry becomes
// CurrentStep, and that entry is removed from StepHistory. Returns false if
// StepHistory is empty.
func (s *WorkflowState) popHistory() bool {
	if len(s.StepHistory) == 0 {
		return false
	}
	last := len(s.StepHistory) - 1
	s.CurrentStep = s.StepHistory[last]
	s.StepHistory = s.StepHistory[:last]
	return true
}

// Clone returns a deep-enough copy of s safe to hand to an adapter or
// persist without aliasing the receiver's slices/maps.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.StepHistory = append([]string(nil), s.StepHistory...)
	clone.Data = make(map[string]StepData, len(s.Data))
	for k, v := range s.Data {
		sel := append([]string(nil), v.Selection...)
		v.Selection = sel
		clone.Data[k] = v
	}
	clone.LastMessageIDs = make(map[string]string, len(s.LastMessageIDs))
	for k, v := range s.LastMessageIDs {
		clone.LastMessageIDs[k] = v
	}
	return &clone
}
