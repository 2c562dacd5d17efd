// Package engine implements the workflow state machine: definition
// validation, the transition engine, meta-actions, tool-call invocation,
// progress tracking, and the per-(user, workflow) concurrency guard.
package engine

import (
	"fmt"
	"regexp"

	"github.com/flowmesh/workflow/primitive"
)

// StepKind discriminates the tagged variant StepDefinition is over.
type StepKind string

const (
	StepInfo        StepKind = "info"
	StepChoice      StepKind = "choice"
	StepMultiChoice StepKind = "multi-choice"
	StepConfirm     StepKind = "confirm"
	StepTextInput   StepKind = "text-input"
	StepMedia       StepKind = "media"
)

// Validation bounds a text-input step's accepted reply.
type Validation struct {
	MinLength    int    `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern      string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`

	compiled *regexp.Regexp
}

// ToolCallBinding binds a step to an external tool invocation. Each
// ParamMap value is a "source": the literal token "$input", a reference of
// the form "$data.<stepId>" / "$data.<stepId>.input" / "$data.<stepId>.selection",
// or any other literal string used verbatim.
type ToolCallBinding struct {
	Name     string            `json:"name" yaml:"name"`
	ParamMap map[string]string `json:"paramMap" yaml:"paramMap"`
	OnError  string            `json:"onError,omitempty" yaml:"onError,omitempty"`
}

// StepDefinition is one node of a WorkflowDefinition.
type StepDefinition struct {
	Kind    StepKind `json:"kind" yaml:"kind"`
	Content string   `json:"content" yaml:"content"`

	SuppressProgress bool             `json:"suppressProgress,omitempty" yaml:"suppressProgress,omitempty"`
	ToolCall         *ToolCallBinding `json:"toolCall,omitempty" yaml:"toolCall,omitempty"`
	Validation       *Validation      `json:"validation,omitempty" yaml:"validation,omitempty"`
	Placeholder      string           `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`

	Next        string            `json:"next,omitempty" yaml:"next,omitempty"`
	Transitions map[string]string `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Terminal    bool              `json:"terminal,omitempty" yaml:"terminal,omitempty"`

	// Choice / multi-choice.
	Options       []primitive.Option `json:"options,omitempty" yaml:"options,omitempty"`
	MinSelections int                `json:"minSelections,omitempty" yaml:"minSelections,omitempty"`

	// Confirm.
	YesLabel string `json:"yesLabel,omitempty" yaml:"yesLabel,omitempty"`
	NoLabel  string `json:"noLabel,omitempty" yaml:"noLabel,omitempty"`

	// Media.
	Media *primitive.MediaSpec `json:"media,omitempty" yaml:"media,omitempty"`
}

// outboundTargets returns every step id this step can transition to,
// ignoring ToolCall.OnError (validated separately since it fires on a
// different path than normal advancement).
func (s StepDefinition) outboundTargets() []string {
	var out []string
	if s.Next != "" {
		out = append(out, s.Next)
	}
	for _, target := range s.Transitions {
		out = append(out, target)
	}
	return out
}

// WorkflowDefinition is the immutable, data-only description of a workflow,
// as loaded from a JSON or YAML definition file.
type WorkflowDefinition struct {
	ID          string                    `json:"id" yaml:"id"`
	Plugin      string                    `json:"plugin" yaml:"plugin"`
	Version     string                    `json:"version" yaml:"version"`
	EntryPoint  string                    `json:"entryPoint" yaml:"entryPoint"`
	TTLMillis   int64                     `json:"ttlMillis,omitempty" yaml:"ttlMillis,omitempty"`
	ShowProgres *bool                     `json:"showProgress,omitempty" yaml:"showProgress,omitempty"`
	Steps       map[string]StepDefinition `json:"steps" yaml:"steps"`
}

// DefaultTTL is applied when a WorkflowDefinition omits TTLMillis.
const DefaultTTL = 60 * 60 * 1000 // one hour, in milliseconds.

// ShowProgress reports whether progress should be rendered for this
// definition; absent ShowProgress defaults to true.
func (d WorkflowDefinition) ShowProgress() bool {
	return d.ShowProgres == nil || *d.ShowProgres
}

// EffectiveTTLMillis returns d.TTLMillis, defaulting to DefaultTTL when zero.
func (d WorkflowDefinition) EffectiveTTLMillis() int64 {
	if d.TTLMillis <= 0 {
		return DefaultTTL
	}
	return d.TTLMillis
}

// ValidationError describes one structural problem found in a
// WorkflowDefinition. Validate returns all of them, not just the first.
type ValidationError struct {
	StepID string
	Reason string
}

func (e ValidationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("step %q: %s", e.StepID, e.Reason)
	}
	return e.Reason
}

// ValidationErrors aggregates every ValidationError found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msg := fmt.Sprintf("%d validation error(s): %s", len(e), e[0].Error())
	for _, extra := range e[1:] {
		msg += "; " + extra.Error()
	}
	return msg
}

// Validate checks d against every invariant spec.md §3 imposes on a
// WorkflowDefinition, returning every violation found (not just the first).
// A definition that fails validation must never be installed in a Registry.
func (d WorkflowDefinition) Validate() error {
	var errs ValidationErrors

	if d.ID == "" {
		errs = append(errs, ValidationError{Reason: "id is required"})
	}
	if d.EntryPoint == "" {
		errs = append(errs, ValidationError{Reason: "entryPoint is required"})
	} else if _, ok := d.Steps[d.EntryPoint]; !ok {
		errs = append(errs, ValidationError{Reason: fmt.Sprintf("entryPoint %q is not a defined step", d.EntryPoint)})
	}
	if len(d.Steps) == 0 {
		errs = append(errs, ValidationError{Reason: "at least one step is required"})
	}

	for id, step := range d.Steps {
		errs = append(errs, validateStep(id, step, d.Steps)...)
	}

	if len(errs) == 0 {
		errs = append(errs, validateReachability(d)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateStep(id string, step StepDefinition, all map[string]StepDefinition) ValidationErrors {
	var errs ValidationErrors

	if step.Terminal && len(step.outboundTargets()) > 0 {
		errs = append(errs, ValidationError{StepID: id, Reason: "terminal steps must not declare next or transitions"})
	}

	for _, target := range step.outboundTargets() {
		if _, ok := all[target]; !ok {
			errs = append(errs, ValidationError{StepID: id, Reason: fmt.Sprintf("references undefined step %q", target)})
		}
	}

	if step.ToolCall != nil {
		if step.ToolCall.Name == "" {
			errs = append(errs, ValidationError{StepID: id, Reason: "toolCall.name is required"})
		}
		if step.ToolCall.OnError != "" {
			if _, ok := all[step.ToolCall.OnError]; !ok {
				errs = append(errs, ValidationError{StepID: id, Reason: fmt.Sprintf("toolCall.onError references undefined step %q", step.ToolCall.OnError)})
			}
		}
	}

	switch step.Kind {
	case StepChoice, StepMultiChoice:
		if len(step.Options) == 0 {
			errs = append(errs, ValidationError{StepID: id, Reason: "choice/multi-choice steps require options"})
		}
	case StepConfirm:
		if step.YesLabel == "" || step.NoLabel == "" {
			errs = append(errs, ValidationError{StepID: id, Reason: "confirm steps require both yesLabel and noLabel"})
		}
	case StepMedia:
		if step.Media == nil {
			errs = append(errs, ValidationError{StepID: id, Reason: "media steps require a media spec"})
		}
	case StepInfo, StepTextInput:
		// no additional required fields.
	default:
		errs = append(errs, ValidationError{StepID: id, Reason: fmt.Sprintf("unknown step kind %q", step.Kind)})
	}

	if step.Validation != nil {
		if step.Validation.Pattern != "" {
			compiled, err := regexp.Compile(step.Validation.Pattern)
			if err != nil {
				errs = append(errs, ValidationError{StepID: id, Reason: fmt.Sprintf("invalid validation pattern: %v", err)})
			} else {
				step.Validation.compiled = compiled
			}
		}
		if step.Validation.MaxLength > 0 && step.Validation.MinLength > step.Validation.MaxLength {
			errs = append(errs, ValidationError{StepID: id, Reason: "validation.minLength exceeds validation.maxLength"})
		}
	}

	return errs
}

// validateReachability confirms every non-terminal step can reach some
// terminal step, via either Next or any Transitions target.
func validateReachability(d WorkflowDefinition) ValidationErrors {
	var errs ValidationErrors
	for id, step := range d.Steps {
		if step.Terminal {
			continue
		}
		if !reachesTerminal(id, d.Steps, map[string]bool{}) {
			errs = append(errs, ValidationError{StepID: id, Reason: "does not reach any terminal step"})
		}
	}
	return errs
}

func reachesTerminal(id string, steps map[string]StepDefinition, visiting map[string]bool) bool {
	if visiting[id] {
		return false // cycle without having hit a terminal step.
	}
	step, ok := steps[id]
	if !ok {
		return false
	}
	if step.Terminal {
		return true
	}
	visiting[id] = true
	defer delete(visiting, id)
	for _, target := range step.outboundTargets() {
		if reachesTerminal(target, steps, visiting) {
			return true
		}
	}
	return false
}

// CompiledPattern returns the compiled validation regex, compiling it lazily
// if Validate has not already done so (e.g. for a definition constructed by
// hand in tests rather than loaded through the registry).
func (v *Validation) CompiledPattern() (*regexp.Regexp, error) {
	if v.Pattern == "" {
		return nil, nil
	}
	if v.compiled == nil {
		compiled, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, err
		}
		v.compiled = compiled
	}
	return v.compiled, nil
}
