package engine

import "fmt"

// validateTextInput checks text against a text-input step's Validation
// bounds, returning a user-facing message on failure (custom ErrorMessage
// if set, else a generated default) and ok=false.
func validateTextInput(v *Validation, text string) (message string, ok bool) {
	if v == nil {
		return "", true
	}
	if v.MinLength > 0 && len(text) < v.MinLength {
		return validationMessage(v, fmt.Sprintf("Please enter at least %d characters.", v.MinLength)), false
	}
	if v.MaxLength > 0 && len(text) > v.MaxLength {
		return validationMessage(v, fmt.Sprintf("Please enter at most %d characters.", v.MaxLength)), false
	}
	if v.Pattern != "" {
		re, err := v.CompiledPattern()
		if err != nil {
			return validationMessage(v, "That doesn't look right. Please try again."), false
		}
		if re != nil && !re.MatchString(text) {
			return validationMessage(v, "That doesn't look right. Please try again."), false
		}
	}
	return "", true
}

func validationMessage(v *Validation, fallback string) string {
	if v.ErrorMessage != "" {
		return v.ErrorMessage
	}
	return fallback
}

// validateMultiChoice checks a multi-choice submission's selection count
// against the step's minSelections, returning a user-facing message on
// failure and ok=false.
func validateMultiChoice(step StepDefinition, selected []string) (message string, ok bool) {
	if step.MinSelections > 0 && len(selected) < step.MinSelections {
		return fmt.Sprintf("Please select at least %d option(s).", step.MinSelections), false
	}
	return "", true
}
