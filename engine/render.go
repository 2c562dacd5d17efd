package engine

import "github.com/flowmesh/workflow/primitive"

// buildPrimitive turns a StepDefinition into the surface-agnostic
// primitive.Primitive an adapter renders, interpolating {{data...}}
// references against state.Data and attaching progress per spec.md §4.7.
func buildPrimitive(def WorkflowDefinition, stepID string, step StepDefinition, state *WorkflowState) primitive.Primitive {
	p := primitive.Primitive{
		Content:       interpolate(step.Content, state.Data),
		IncludeBack:   len(state.StepHistory) > 0 && !step.Terminal,
		IncludeCancel: !step.Terminal,
		Progress:      computeProgress(def, state),
	}

	switch step.Kind {
	case StepChoice:
		p.Kind = primitive.KindChoice
		p.Options = step.Options
	case StepMultiChoice:
		p.Kind = primitive.KindMultiChoice
		p.Options = step.Options
		p.MinSelections = step.MinSelections
	case StepConfirm:
		p.Kind = primitive.KindConfirm
		p.YesLabel = step.YesLabel
		p.NoLabel = step.NoLabel
	case StepTextInput:
		p.Kind = primitive.KindTextInput
	case StepMedia:
		p.Kind = primitive.KindMedia
		p.Media = step.Media
	default:
		p.Kind = primitive.KindInfo
	}

	return p
}
