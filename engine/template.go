package engine

import (
	"regexp"
	"strings"
)

var templateRef = regexp.MustCompile(`\{\{data\.([A-Za-z0-9_-]+)(?:\.(input|selection))?\}\}`)

// interpolate expands every "{{data.<stepId>[.input|.selection]}}" reference
// in content using values already accumulated in data. A bare
// "{{data.<stepId>}}" prefers Input when both are present. A reference to
// an unvisited step expands to the empty string, per spec.
func interpolate(content string, data map[string]StepData) string {
	return templateRef.ReplaceAllStringFunc(content, func(match string) string {
		sub := templateRef.FindStringSubmatch(match)
		stepID, field := sub[1], sub[2]
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
	})
}
