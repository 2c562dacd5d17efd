package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/workflow/engine/emit"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
	"github.com/flowmesh/workflow/tool"
)

// cancellationMessage is the fixed, user-visible text sent whenever a
// workflow is cancelled — by the cancel meta-action or by back-at-empty-
// history. A concurrency-lock rejection returns an EngineError and sends
// nothing.
const cancellationMessage = "This has been cancelled."

// Engine drives workflow execution end to end: registration/validation,
// start/advance/complete, meta-actions, tool-call invocation, progress, and
// the per-(userId, workflowId) concurrency guard. It is the sole outward
// vocabulary named by spec.md §6: registerWorkflow, registerAdapter,
// startWorkflow, handleAction, cancelWorkflow, getActiveWorkflow,
// getSurfaceCapabilities.
type Engine struct {
	registry *Registry
	adapters *AdapterRegistry
	store    StateStore
	tools    tool.Executor
	lock     *keyLock
	opts     Options

	sweeper   *time.Ticker
	stopSweep chan struct{}
}

// New constructs an Engine over store and tools, with its own private
// Registry and AdapterRegistry — spec.md §9 requires that tests be able to
// instantiate isolated engines rather than share module-level registries.
// It runs one synchronous sweep pass immediately (startup recovery for
// states that expired while nothing was running), then starts the
// background TTL sweeper unless opts.SweepInterval is 0.
func New(store StateStore, tools tool.Executor, opts ...Option) *Engine {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	e := &Engine{
		registry: NewRegistry(),
		adapters: NewAdapterRegistry(),
		store:    store,
		tools:    tools,
		lock:     newKeyLock(),
		opts:     o,
	}
	e.sweep(context.Background())
	if o.SweepInterval > 0 {
		e.sweeper = time.NewTicker(o.SweepInterval)
		e.stopSweep = make(chan struct{})
		go e.sweepLoop()
	}
	return e
}

// Close stops the background TTL sweeper. Safe to call on an Engine whose
// sweeper was disabled via WithSweepInterval(0); it is then a no-op.
func (e *Engine) Close() {
	if e.sweeper == nil {
		return
	}
	e.sweeper.Stop()
	close(e.stopSweep)
}

func (e *Engine) sweepLoop() {
	for {
		select {
		case <-e.stopSweep:
			return
		case <-e.sweeper.C:
			e.sweep(context.Background())
		}
	}
}

// sweep deletes every expired state in the store, skipping keys currently
// held by an in-flight HandleAction/StartWorkflow call (spec.md §5: "the
// sweeper skips locked keys") so it never races a user action to completion.
func (e *Engine) sweep(ctx context.Context) {
	states, err := e.store.ListAll(ctx)
	if err != nil {
		e.opts.Emitter.Emit(emit.Event{Msg: "sweep_error", Meta: map[string]any{"error": err.Error()}})
		return
	}
	now := e.opts.Clock()
	for _, state := range states {
		if !state.IsExpired(now) {
			continue
		}
		if e.lock.isBusy(state.UserID, state.WorkflowID) {
			continue
		}
		if err := e.store.Delete(ctx, state.UserID, state.WorkflowID); err != nil {
			e.opts.Emitter.Emit(emit.Event{UserID: state.UserID, WorkflowID: state.WorkflowID, Msg: "sweep_error", Meta: map[string]any{"error": err.Error()}})
			continue
		}
		e.opts.Emitter.Emit(emit.Event{UserID: state.UserID, WorkflowID: state.WorkflowID, Msg: "workflow_expired"})
	}
}

// RegisterWorkflow validates and installs def.
func (e *Engine) RegisterWorkflow(def WorkflowDefinition) error {
	return e.registry.Register(def)
}

// Registry exposes the Engine's private workflow registry so a host can
// attach a definition-directory watcher (WatchDefinitions) that reloads
// into the exact registry HandleAction reads from. Each Engine still owns
// its own unshared Registry instance; this only lets something else hold a
// reference to it.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RegisterAdapter installs adapter under its own surfaceId.
func (e *Engine) RegisterAdapter(adapter surface.Adapter) {
	e.adapters.Register(adapter)
}

// GetSurfaceCapabilities returns the capabilities published by surfaceID's
// adapter.
func (e *Engine) GetSurfaceCapabilities(surfaceID string) (primitive.SurfaceCapabilities, bool) {
	return e.adapters.Capabilities(surfaceID)
}

// GetActiveWorkflow returns userID's sole active WorkflowState, if any and
// unexpired. An expired state is deleted and reported as no active workflow.
func (e *Engine) GetActiveWorkflow(ctx context.Context, userID string) (*WorkflowState, error) {
	state, err := e.store.GetActiveForUser(ctx, userID)
	if err == ErrStateNotFound {
		return nil, ErrNoActiveWorkflow
	}
	if err != nil {
		return nil, fmt.Errorf("engine: get active workflow: %w", err)
	}
	if state.IsExpired(e.opts.Clock()) {
		_ = e.store.Delete(ctx, userID, state.WorkflowID)
		return nil, ErrNoActiveWorkflow
	}
	return state, nil
}

// StartWorkflow deletes any prior instance of workflowID for userID,
// creates fresh state at the definition's entryPoint, renders it, and
// auto-advances through any consecutive non-terminal info steps.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID, userID, surfaceID string, initialData map[string]StepData) (*WorkflowState, Outcome, error) {
	def, ok := e.registry.Get(workflowID)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	if !e.lock.tryAcquire(userID, workflowID) {
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: workflowID, Msg: "lock_contention", Meta: map[string]any{"op": "start"}})
		return nil, OutcomeCancelled, &EngineError{Outcome: OutcomeCancelled, Reason: "already handled on another surface"}
	}
	defer e.lock.release(userID, workflowID)

	if err := e.store.Delete(ctx, userID, workflowID); err != nil {
		return nil, "", fmt.Errorf("engine: clear prior state: %w", err)
	}
	if active, err := e.store.GetActiveForUser(ctx, userID); err == nil {
		if err := e.store.Delete(ctx, userID, active.WorkflowID); err != nil {
			return nil, "", fmt.Errorf("engine: clear user's other active state: %w", err)
		}
	} else if err != ErrStateNotFound {
		return nil, "", fmt.Errorf("engine: lookup active state: %w", err)
	}

	now := e.opts.Clock()
	data := initialData
	if data == nil {
		data = make(map[string]StepData)
	}
	state := &WorkflowState{
		WorkflowID:     workflowID,
		UserID:         userID,
		CurrentStep:    def.EntryPoint,
		Data:           data,
		StartedAt:      now,
		LastActiveAt:   now,
		ExpiresAt:      now.Add(time.Duration(def.EffectiveTTLMillis()) * time.Millisecond),
		OriginSurface:  surfaceID,
		LastSurface:    surfaceID,
		LastMessageIDs: make(map[string]string),
	}
	if err := e.store.Create(ctx, state); err != nil {
		return nil, "", fmt.Errorf("engine: create state: %w", err)
	}

	if err := e.renderCurrent(ctx, def, state); err != nil {
		return state, "", err
	}

	e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: workflowID, StepID: def.EntryPoint, Msg: "workflow_started"})

	if def.Steps[state.CurrentStep].Terminal {
		_ = e.store.Delete(ctx, userID, workflowID)
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: workflowID, Msg: "workflow_completed"})
		return state, OutcomeCompleted, nil
	}

	completed, toolErr := e.autoAdvance(ctx, def, state)
	if completed {
		_ = e.store.Delete(ctx, userID, workflowID)
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: workflowID, Msg: "workflow_completed"})
		return state, OutcomeCompleted, nil
	}
	if toolErr != nil {
		_ = e.store.Update(ctx, state)
		return state, OutcomeToolError, toolErr
	}
	return state, OutcomeAdvanced, nil
}

// CancelWorkflow deletes userID's active instance of workflowID, if any.
// Idempotent, per spec.md §8.
func (e *Engine) CancelWorkflow(ctx context.Context, userID, workflowID string) error {
	if !e.lock.tryAcquire(userID, workflowID) {
		return &EngineError{Outcome: OutcomeCancelled, Reason: "already handled on another surface"}
	}
	defer e.lock.release(userID, workflowID)
	return e.store.Delete(ctx, userID, workflowID)
}

// HandleAction processes one ParsedUserAction against userID's active
// instance of action.WorkflowID, per spec.md §4.7.
func (e *Engine) HandleAction(ctx context.Context, userID string, action surface.ParsedUserAction) (Outcome, *WorkflowState, error) {
	if !e.lock.tryAcquire(userID, action.WorkflowID) {
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, Msg: "lock_contention", Meta: map[string]any{"op": "handle_action"}})
		return OutcomeCancelled, nil, &EngineError{Outcome: OutcomeCancelled, Reason: "already handled on another surface"}
	}
	defer e.lock.release(userID, action.WorkflowID)

	state, err := e.store.Get(ctx, userID, action.WorkflowID)
	if err == ErrStateNotFound {
		return "", nil, ErrNoActiveWorkflow
	}
	if err != nil {
		return "", nil, fmt.Errorf("engine: load state: %w", err)
	}

	now := e.opts.Clock()
	if state.IsExpired(now) {
		_ = e.store.Delete(ctx, userID, action.WorkflowID)
		return "", nil, ErrNoActiveWorkflow
	}

	def, ok := e.registry.Get(action.WorkflowID)
	if !ok {
		_ = e.store.Delete(ctx, userID, action.WorkflowID)
		return OutcomeCancelled, nil, &EngineError{Outcome: OutcomeCancelled, Reason: "workflow no longer registered", Cause: ErrUnknownWorkflow}
	}

	// Step 1: update lastSurface/lastActiveAt before any render.
	state.LastSurface = action.Surface.SurfaceID
	state.LastActiveAt = now

	adapter, hasAdapter := e.adapters.Adapter(action.Surface.SurfaceID)

	// Step 2: meta-action cancel.
	if action.Kind == surface.ActionCancel {
		return e.cancelAndNotify(ctx, userID, action, adapter, hasAdapter)
	}

	// Step 3: meta-action back.
	if action.Kind == surface.ActionBack {
		if len(state.StepHistory) == 0 {
			return e.cancelAndNotify(ctx, userID, action, adapter, hasAdapter)
		}
		state.popHistory()
		delete(state.Data, state.CurrentStep)
		if err := e.store.Update(ctx, state); err != nil {
			return "", state, fmt.Errorf("engine: persist after back: %w", err)
		}
		if hasAdapter {
			if err := e.renderCurrent(ctx, def, state); err != nil {
				return "", state, err
			}
		}
		return OutcomeAdvanced, state, nil
	}

	step, ok := def.Steps[state.CurrentStep]
	if !ok {
		return "", state, fmt.Errorf("engine: current step %q no longer exists in %q", state.CurrentStep, action.WorkflowID)
	}

	var selected []string
	if action.Kind == surface.ActionSelection {
		if len(action.Values) > 0 {
			selected = action.Values
		} else if action.Value != "" {
			selected = []string{action.Value}
		}
	}

	// Step 4: input validation.
	if step.Kind == StepTextInput {
		if msg, valid := validateTextInput(step.Validation, action.Text); !valid {
			_ = e.store.Update(ctx, state)
			e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, StepID: state.CurrentStep, Msg: "validation_error"})
			if hasAdapter {
				_, _ = adapter.SendMessage(ctx, action.Surface, surface.MessagePayload{Text: msg})
			}
			return OutcomeValidationError, state, nil
		}
	}
	if step.Kind == StepMultiChoice {
		if msg, valid := validateMultiChoice(step, selected); !valid {
			_ = e.store.Update(ctx, state)
			e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, StepID: state.CurrentStep, Msg: "validation_error"})
			if hasAdapter {
				_, _ = adapter.SendMessage(ctx, action.Surface, surface.MessagePayload{Text: msg})
			}
			return OutcomeValidationError, state, nil
		}
	}

	// Step 5: store StepData derived from the action kind.
	sd := StepData{Timestamp: now}
	switch action.Kind {
	case surface.ActionSelection:
		sd.Selection = selected
	case surface.ActionText:
		sd.Input = action.Text
	}
	if state.Data == nil {
		state.Data = make(map[string]StepData)
	}
	state.Data[state.CurrentStep] = sd

	// Step 6: tool call.
	if step.ToolCall != nil {
		result, callErr := e.invokeTool(ctx, action.WorkflowID, userID, state.CurrentStep, step.ToolCall, action.Text, state.Data)
		if callErr != nil || !result.Success {
			msg := toolErrorMessage(callErr, result)
			e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, StepID: state.CurrentStep, Msg: "tool_error", Meta: map[string]any{"tool": step.ToolCall.Name, "error": msg}})
			if step.ToolCall.OnError != "" {
				state.pushHistory(step.ToolCall.OnError)
			}
			if err := e.store.Update(ctx, state); err != nil {
				return "", state, fmt.Errorf("engine: persist after tool error: %w", err)
			}
			if hasAdapter {
				if step.ToolCall.OnError != "" {
					if err := e.renderCurrent(ctx, def, state); err != nil {
						return "", state, err
					}
				} else {
					_, _ = adapter.SendMessage(ctx, action.Surface, surface.MessagePayload{Text: msg})
				}
			}
			if onErrStep, ok := def.Steps[state.CurrentStep]; ok && step.ToolCall.OnError != "" && onErrStep.Terminal {
				_ = e.store.Delete(ctx, userID, action.WorkflowID)
			}
			return OutcomeToolError, state, &EngineError{Outcome: OutcomeToolError, Reason: msg}
		}
	}

	// Step 7: resolve next step.
	nextID := ""
	if action.Kind == surface.ActionSelection && action.Value != "" {
		nextID = step.Transitions[action.Value]
	}
	if nextID == "" {
		nextID = step.Next
	}
	if nextID == "" {
		if step.Terminal {
			if err := e.store.Delete(ctx, userID, action.WorkflowID); err != nil {
				return "", state, fmt.Errorf("engine: delete on completion: %w", err)
			}
			e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, Msg: "workflow_completed"})
			return OutcomeCompleted, state, nil
		}
		if err := e.store.Update(ctx, state); err != nil {
			return "", state, fmt.Errorf("engine: persist unchanged state: %w", err)
		}
		return OutcomeAdvanced, state, nil
	}

	// Step 8: advance, persist, render, auto-advance.
	state.pushHistory(nextID)
	if err := e.store.Update(ctx, state); err != nil {
		return "", state, fmt.Errorf("engine: persist after advance: %w", err)
	}
	if hasAdapter {
		if err := e.renderCurrent(ctx, def, state); err != nil {
			return "", state, err
		}
	}

	if def.Steps[state.CurrentStep].Terminal {
		_ = e.store.Delete(ctx, userID, action.WorkflowID)
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, Msg: "workflow_completed"})
		return OutcomeCompleted, state, nil
	}

	completed, toolErr := e.autoAdvance(ctx, def, state)
	if completed {
		_ = e.store.Delete(ctx, userID, action.WorkflowID)
		e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, Msg: "workflow_completed"})
		return OutcomeCompleted, state, nil
	}
	if toolErr != nil {
		_ = e.store.Update(ctx, state)
		return OutcomeToolError, state, toolErr
	}
	e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, StepID: state.CurrentStep, Msg: "step_advanced"})
	return OutcomeAdvanced, state, nil
}

func (e *Engine) cancelAndNotify(ctx context.Context, userID string, action surface.ParsedUserAction, adapter surface.Adapter, hasAdapter bool) (Outcome, *WorkflowState, error) {
	if err := e.store.Delete(ctx, userID, action.WorkflowID); err != nil {
		return "", nil, fmt.Errorf("engine: delete on cancel: %w", err)
	}
	e.opts.Emitter.Emit(emit.Event{UserID: userID, WorkflowID: action.WorkflowID, Msg: "workflow_cancelled"})
	if hasAdapter {
		_, _ = adapter.SendMessage(ctx, action.Surface, surface.MessagePayload{Text: cancellationMessage})
	}
	return OutcomeCancelled, nil, nil
}

// renderCurrent builds and renders state's current step via its
// LastSurface's adapter, recording the returned message id.
func (e *Engine) renderCurrent(ctx context.Context, def WorkflowDefinition, state *WorkflowState) error {
	adapter, ok := e.adapters.Adapter(state.LastSurface)
	if !ok {
		return nil // no adapter registered for this surface; nothing to render.
	}
	step, ok := def.Steps[state.CurrentStep]
	if !ok {
		return fmt.Errorf("%w: step %q not found", ErrRenderFailed, state.CurrentStep)
	}
	p := buildPrimitive(def, state.CurrentStep, step, state)
	target := surface.Ref{SurfaceID: state.LastSurface, SurfaceUserID: state.UserID}
	rendered, err := adapter.Render(ctx, target, state.WorkflowID, state.CurrentStep, p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	if state.LastMessageIDs == nil {
		state.LastMessageIDs = make(map[string]string)
	}
	state.LastMessageIDs[state.LastSurface] = rendered.MessageID
	return nil
}

// autoAdvance walks state forward through consecutive non-terminal info
// steps carrying a next target, per spec.md §4.7's start/advance policy. It
// returns completed=true if a terminal step was reached, or a non-nil error
// if an auto-advanced tool call failed (which always stops auto-advance).
func (e *Engine) autoAdvance(ctx context.Context, def WorkflowDefinition, state *WorkflowState) (completed bool, toolErr error) {
	for hops := 0; hops < e.opts.MaxAutoAdvanceHops; hops++ {
		step, ok := def.Steps[state.CurrentStep]
		if !ok || step.Kind != StepInfo || step.Terminal || step.Next == "" {
			return false, nil
		}

		if step.ToolCall != nil {
			result, callErr := e.invokeTool(ctx, state.WorkflowID, state.UserID, state.CurrentStep, step.ToolCall, "", state.Data)
			if callErr != nil || !result.Success {
				return false, &EngineError{Outcome: OutcomeToolError, Reason: toolErrorMessage(callErr, result)}
			}
		}

		state.pushHistory(step.Next)
		if err := e.store.Update(ctx, state); err != nil {
			return false, fmt.Errorf("engine: persist during auto-advance: %w", err)
		}
		if err := e.renderCurrent(ctx, def, state); err != nil {
			return false, err
		}

		next := def.Steps[state.CurrentStep]
		if next.Terminal {
			return true, nil
		}
	}
	return false, nil
}

// idempotencyParamKey is the reserved params entry invokeTool sets so a
// ToolExecutor can recognize and skip a duplicate invocation of the same
// (workflow, user, step, params) call — e.g. one auto-retried after a
// timeout whose side effect actually landed.
const idempotencyParamKey = "_idempotency_key"

// invokeTool resolves step's paramMap, stamps it with an idempotency key,
// and calls the ToolExecutor, bounded by the engine's default tool timeout.
func (e *Engine) invokeTool(ctx context.Context, workflowID, userID, stepID string, binding *ToolCallBinding, currentInput string, data map[string]StepData) (tool.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.DefaultToolTimeout)
	defer cancel()
	params := resolveParams(binding.ParamMap, currentInput, data)
	if key, err := toolCallIdempotencyKey(workflowID, userID, stepID, params); err == nil {
		params[idempotencyParamKey] = key
	}
	return e.tools.Execute(ctx, binding.Name, params)
}

func toolErrorMessage(callErr error, result tool.Result) string {
	if callErr != nil {
		return callErr.Error()
	}
	if result.Error != "" {
		return result.Error
	}
	return "the requested action could not be completed"
}
