package surface

import "strings"

// EncodeActionID produces the uniform callback-data encoding for an inline
// control: "wf:<workflowId>|s:<stepId>|a:<actionId>". actionId is normally
// an option.ID, or one of ActionIDYes/ActionIDNo/ActionIDSubmit/
// ActionIDBack/ActionIDCancel.
func EncodeActionID(workflowID, stepID, actionID string) string {
	return "wf:" + workflowID + "|s:" + stepID + "|a:" + actionID
}

// DecodeActionID reverses EncodeActionID. It returns ok=false for any string
// that doesn't match the "wf:...|s:...|a:..." shape.
func DecodeActionID(data string) (workflowID, stepID, actionID string, ok bool) {
	const (
		wfPrefix = "wf:"
		sInfix   = "|s:"
		aInfix   = "|a:"
	)
	if !strings.HasPrefix(data, wfPrefix) {
		return "", "", "", false
	}
	rest := data[len(wfPrefix):]

	sIdx := strings.Index(rest, sInfix)
	if sIdx < 0 {
		return "", "", "", false
	}
	workflowID = rest[:sIdx]
	rest = rest[sIdx+len(sInfix):]

	aIdx := strings.Index(rest, aInfix)
	if aIdx < 0 {
		return "", "", "", false
	}
	stepID = rest[:aIdx]
	actionID = rest[aIdx+len(aInfix):]

	if workflowID == "" || stepID == "" {
		return "", "", "", false
	}
	return workflowID, stepID, actionID, true
}

// TruncateCallbackData deterministically shortens an over-budget encoding to
// fit within maxLen, per adapter transport limits. workflowID and stepID are
// load-bearing for routing, so truncation eats into the actionId segment
// first; if that alone cannot make the encoding fit, the stepId segment is
// trimmed next. The result may no longer round-trip to the original
// actionId — callers needing exact fidelity must keep actionIds within
// budget in the first place.
func TruncateCallbackData(data string, maxLen int) string {
	if maxLen <= 0 || len(data) <= maxLen {
		return data
	}
	workflowID, stepID, actionID, ok := DecodeActionID(data)
	if !ok {
		if len(data) <= maxLen {
			return data
		}
		return data[:maxLen]
	}

	overflow := len(data) - maxLen
	if overflow < len(actionID) {
		actionID = actionID[:len(actionID)-overflow]
		return EncodeActionID(workflowID, stepID, actionID)
	}

	// Dropping the whole actionId still isn't enough: trim stepId next.
	encoded := EncodeActionID(workflowID, stepID, "")
	if len(encoded) <= maxLen {
		return encoded
	}
	remainder := len(encoded) - maxLen
	if remainder >= len(stepID) {
		stepID = ""
	} else {
		stepID = stepID[:len(stepID)-remainder]
	}
	result := EncodeActionID(workflowID, stepID, "")
	if len(result) > maxLen {
		result = result[:maxLen]
	}
	return result
}

// EncodeModalID produces the callback id structured-input surfaces (modals)
// use to identify which step a submitted form belongs to:
// "wf_modal:<workflowId>:<stepId>".
func EncodeModalID(workflowID, stepID string) string {
	return "wf_modal:" + workflowID + ":" + stepID
}

// DecodeModalID reverses EncodeModalID.
func DecodeModalID(data string) (workflowID, stepID string, ok bool) {
	const prefix = "wf_modal:"
	if !strings.HasPrefix(data, prefix) {
		return "", "", false
	}
	rest := data[len(prefix):]
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return "", "", false
	}
	workflowID, stepID = rest[:idx], rest[idx+1:]
	if workflowID == "" || stepID == "" {
		return "", "", false
	}
	return workflowID, stepID, true
}

// IsMetaCommand recognizes the text meta-commands "cancel" / "back",
// case-insensitive, with an optional leading slash, as used by text-only
// surfaces (SMS, shell) that have no dedicated control for meta-actions.
func IsMetaCommand(text string) (ActionKind, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimPrefix(t, "/")
	switch t {
	case "cancel":
		return ActionCancel, true
	case "back":
		return ActionBack, true
	default:
		return "", false
	}
}
