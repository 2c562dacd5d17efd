package engine

import "strings"

// resolveParam resolves one ToolCallBinding.ParamMap value — a "source" —
// against the action that triggered this step and the state's accumulated
// Data, per spec.md §4.7 bullet 6:
//
//	"$input"                         -> the current step's raw text input
//	"$data.<stepId>"                 -> that step's Input (preferring it)
//	                                     or joined Selection
//	"$data.<stepId>.input"           -> that step's Input
//	"$data.<stepId>.selection"       -> that step's Selection, joined
//	anything else                    -> used verbatim as a literal
func resolveParam(source, currentInput string, data map[string]StepData) string {
	if source == "$input" {
		return currentInput
	}
	if rest, ok := cutPrefix(source, "$data."); ok {
		stepID, field := rest, ""
		if idx := strings.LastIndex(rest, "."); idx >= 0 {
			candidate := rest[idx+1:]
			if candidate == "input" || candidate == "selection" {
				stepID, field = rest[:idx], candidate
			}
		}
		sd, ok := data[stepID]
		if !ok {
			return ""
		}
		switch field {
		case "input":
			return sd.Input
		case "selection":
			return strings.Join(sd.Selection, ", ")
		default:
			if sd.Input != "" {
				return sd.Input
			}
			return strings.Join(sd.Selection, ", ")
		}
	}
	return source
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// resolveParams applies resolveParam to every entry of paramMap, producing
// the concrete params a ToolExecutor receives.
func resolveParams(paramMap map[string]string, currentInput string, data map[string]StepData) map[string]any {
	out := make(map[string]any, len(paramMap))
	for k, source := range paramMap {
		out[k] = resolveParam(source, currentInput, data)
	}
	return out
}
