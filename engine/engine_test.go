package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmesh/workflow/engine"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/store"
	"github.com/flowmesh/workflow/surface"
	"github.com/flowmesh/workflow/tool"
)

// fakeAdapter is a minimal surface.Adapter recording every render/send for
// assertions, with a configurable delivery delay to create race windows.
type fakeAdapter struct {
	surfaceID string
	caps      primitive.SurfaceCapabilities
	delay     time.Duration

	mu       sync.Mutex
	rendered []primitive.Primitive
	sent     []string
	nextID   int
}

func newFakeAdapter(surfaceID string) *fakeAdapter {
	return &fakeAdapter{
		surfaceID: surfaceID,
		caps:      primitive.SurfaceCapabilities{InlineButtons: true, MaxButtonsPerRow: 3, MaxButtonRows: 5},
	}
}

func (a *fakeAdapter) SurfaceID() string                             { return a.surfaceID }
func (a *fakeAdapter) Version() string                               { return "test-1" }
func (a *fakeAdapter) Capabilities() primitive.SurfaceCapabilities   { return a.caps }
func (a *fakeAdapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) { return nil, nil }
func (a *fakeAdapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	return nil
}
func (a *fakeAdapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return nil
}
func (a *fakeAdapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return nil
}

func (a *fakeAdapter) Render(ctx context.Context, target surface.Ref, workflowID, stepID string, p primitive.Primitive) (surface.RenderedMessage, error) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rendered = append(a.rendered, p)
	a.nextID++
	return surface.RenderedMessage{MessageID: fmt.Sprintf("%s-msg-%d", a.surfaceID, a.nextID)}, nil
}

func (a *fakeAdapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, payload.Text)
	a.nextID++
	return fmt.Sprintf("%s-sent-%d", a.surfaceID, a.nextID), nil
}

func (a *fakeAdapter) renderCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rendered)
}

// scriptedTool answers Execute calls from a fixed queue, falling back to
// alwaysOK once exhausted. Used to script transient failures.
type scriptedTool struct {
	mu      sync.Mutex
	queue   []tool.Result
	calls   int32
	alwaysOK tool.Result
}

func (s *scriptedTool) Execute(ctx context.Context, name string, params map[string]any) (tool.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return s.alwaysOK, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

func threeStepWorkflow() engine.WorkflowDefinition {
	return engine.WorkflowDefinition{
		ID:         "onboarding",
		EntryPoint: "ask_plan",
		Steps: map[string]engine.StepDefinition{
			"ask_plan": {
				Kind:    engine.StepChoice,
				Content: "Which plan?",
				Options: []primitive.Option{
					{ID: "basic", Label: "Basic"},
					{ID: "pro", Label: "Pro"},
				},
				Transitions: map[string]string{
					"basic": "confirm_basic",
					"pro":   "confirm_pro",
				},
			},
			"confirm_basic": {
				Kind:     engine.StepInfo,
				Content:  "You picked Basic.",
				Next:     "done",
			},
			"confirm_pro": {
				Kind:    engine.StepInfo,
				Content: "You picked Pro.",
				Next:    "done",
			},
			"done": {
				Kind:     engine.StepInfo,
				Content:  "All set!",
				Terminal: true,
			},
		},
	}
}

func newTestEngine(t *testing.T, tools tool.Executor) (*engine.Engine, *fakeAdapter) {
	t.Helper()
	st := store.NewMemStore()
	e := engine.New(st, tools, engine.WithDefaultToolTimeout(time.Second), engine.WithSweepInterval(0))
	if err := e.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	adapter := newFakeAdapter("chat")
	e.RegisterAdapter(adapter)
	return e, adapter
}

func TestLinearCompletion(t *testing.T) {
	e, adapter := newTestEngine(t, &scriptedTool{})
	ctx := context.Background()

	state, outcome, err := e.StartWorkflow(ctx, "onboarding", "user-1", "chat", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if outcome != engine.OutcomeAdvanced {
		t.Fatalf("expected advanced after start, got %s", outcome)
	}
	if state.CurrentStep != "ask_plan" {
		t.Fatalf("expected entry step ask_plan, got %s", state.CurrentStep)
	}

	outcome, state, err = e.HandleAction(ctx, "user-1", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "basic",
		WorkflowID: "onboarding", StepID: "ask_plan",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-1"},
	})
	if err != nil {
		t.Fatalf("handle selection: %v", err)
	}
	// confirm_basic -> done is an info->info chain auto-advanced to the
	// terminal step, so the workflow completes in this single call.
	if outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", outcome)
	}
	if _, err := e.GetActiveWorkflow(ctx, "user-1"); err != engine.ErrNoActiveWorkflow {
		t.Fatalf("expected no active workflow after completion, got %v", err)
	}
	if adapter.renderCount() < 2 {
		t.Fatalf("expected at least 2 renders (entry + advance), got %d", adapter.renderCount())
	}
}

func TestBranching(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedTool{})
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-2", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, state, err := e.HandleAction(ctx, "user-2", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "pro",
		WorkflowID: "onboarding", StepID: "ask_plan",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-2"},
	})
	if err != nil {
		t.Fatalf("handle selection: %v", err)
	}
	if outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completed via the pro branch, got %s (state=%+v)", outcome, state)
	}
}

func TestCrossSurfaceContinuation(t *testing.T) {
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{})
	if err := e.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("register: %v", err)
	}
	chatAdapter := newFakeAdapter("chat")
	smsAdapter := newFakeAdapter("sms")
	e.RegisterAdapter(chatAdapter)
	e.RegisterAdapter(smsAdapter)
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-3", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if chatAdapter.renderCount() != 1 {
		t.Fatalf("expected the entry render on chat, got %d", chatAdapter.renderCount())
	}

	// The user continues on sms — the next render must land there, not chat.
	_, state, err := e.HandleAction(ctx, "user-3", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "basic",
		WorkflowID: "onboarding", StepID: "ask_plan",
		Surface: surface.Ref{SurfaceID: "sms", SurfaceUserID: "user-3"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state != nil && state.LastSurface != "sms" {
		t.Fatalf("expected lastSurface sms, got %q", state.LastSurface)
	}
	if smsAdapter.renderCount() == 0 {
		t.Fatalf("expected at least one render on sms after cross-surface continuation")
	}
}

func TestConcurrentActionsOnlyOneWins(t *testing.T) {
	slowAdapter := newFakeAdapter("chat")
	slowAdapter.delay = 50 * time.Millisecond
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{})
	if err := e.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("register: %v", err)
	}
	e.RegisterAdapter(slowAdapter)
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-4", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	action := surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "basic",
		WorkflowID: "onboarding", StepID: "ask_plan",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-4"},
	}

	var wg sync.WaitGroup
	outcomes := make([]engine.Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _, errs[i] = e.HandleAction(ctx, "user-4", action)
		}(i)
	}
	wg.Wait()

	rejected := 0
	for i, outcome := range outcomes {
		if outcome == engine.OutcomeCancelled && errs[i] != nil {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("expected exactly one call rejected by the concurrency lock, got %d (outcomes=%v errs=%v)", rejected, outcomes, errs)
	}
}

func TestRestartSurvival(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	e1 := engine.New(st, &scriptedTool{})
	if err := e1.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("register: %v", err)
	}
	e1.RegisterAdapter(newFakeAdapter("chat"))
	if _, _, err := e1.StartWorkflow(ctx, "onboarding", "user-5", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a process restart: a fresh Engine, same backing store, with
	// the workflow definition and adapter re-registered as a host would on
	// boot.
	e2 := engine.New(st, &scriptedTool{})
	if err := e2.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	e2.RegisterAdapter(newFakeAdapter("chat"))

	state, err := e2.GetActiveWorkflow(ctx, "user-5")
	if err != nil {
		t.Fatalf("expected surviving active workflow, got %v", err)
	}
	if state.CurrentStep != "ask_plan" {
		t.Fatalf("expected step ask_plan to survive restart, got %s", state.CurrentStep)
	}

	outcome, _, err := e2.HandleAction(ctx, "user-5", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "basic",
		WorkflowID: "onboarding", StepID: "ask_plan",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-5"},
	})
	if err != nil {
		t.Fatalf("handle after restart: %v", err)
	}
	if outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completion after restart, got %s", outcome)
	}
}

func TestToolCallRetriedOnResubmit(t *testing.T) {
	def := engine.WorkflowDefinition{
		ID:         "charge",
		EntryPoint: "ask_confirm",
		Steps: map[string]engine.StepDefinition{
			"ask_confirm": {
				Kind:     engine.StepConfirm,
				Content:  "Charge your card?",
				YesLabel: "Yes",
				NoLabel:  "No",
				ToolCall: &engine.ToolCallBinding{
					Name:     "charge_card",
					ParamMap: map[string]string{"amount": "1000"},
				},
				Next: "done",
			},
			"done": {Kind: engine.StepInfo, Content: "Charged.", Terminal: true},
		},
	}
	flaky := &scriptedTool{
		queue:    []tool.Result{{Success: false, Error: "card network timeout"}},
		alwaysOK: tool.Result{Success: true},
	}
	st := store.NewMemStore()
	e := engine.New(st, flaky)
	if err := e.RegisterWorkflow(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	e.RegisterAdapter(newFakeAdapter("chat"))
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "charge", "user-6", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	action := surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "yes",
		WorkflowID: "charge", StepID: "ask_confirm",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-6"},
	}

	outcome, state, err := e.HandleAction(ctx, "user-6", action)
	if outcome != engine.OutcomeToolError {
		t.Fatalf("expected the first attempt to surface tool-error, got %s (err=%v)", outcome, err)
	}
	if state.CurrentStep != "ask_confirm" {
		t.Fatalf("expected step unchanged after a tool failure with no onError, got %s", state.CurrentStep)
	}

	outcome, _, err = e.HandleAction(ctx, "user-6", action)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if outcome != engine.OutcomeCompleted {
		t.Fatalf("expected the resubmitted action to succeed and complete, got %s", outcome)
	}
	if atomic.LoadInt32(&flaky.calls) != 2 {
		t.Fatalf("expected exactly 2 tool invocations (fail then succeed), got %d", flaky.calls)
	}
}

func TestValidationErrorLeavesStepUnchanged(t *testing.T) {
	def := engine.WorkflowDefinition{
		ID:         "signup",
		EntryPoint: "ask_name",
		Steps: map[string]engine.StepDefinition{
			"ask_name": {
				Kind:       engine.StepTextInput,
				Content:    "What's your name?",
				Validation: &engine.Validation{MinLength: 2, ErrorMessage: "Name's too short."},
				Next:       "done",
			},
			"done": {Kind: engine.StepInfo, Content: "Thanks!", Terminal: true},
		},
	}
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{})
	if err := e.RegisterWorkflow(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	adapter := newFakeAdapter("chat")
	e.RegisterAdapter(adapter)
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "signup", "user-7", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	outcome, state, err := e.HandleAction(ctx, "user-7", surface.ParsedUserAction{
		Kind: surface.ActionText, Text: "a",
		WorkflowID: "signup", StepID: "ask_name",
		Surface: surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-7"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != engine.OutcomeValidationError {
		t.Fatalf("expected validation-error, got %s", outcome)
	}
	if state.CurrentStep != "ask_name" {
		t.Fatalf("expected step unchanged on validation failure, got %s", state.CurrentStep)
	}
}

func TestCancelMetaAction(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedTool{})
	ctx := context.Background()
	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-8", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, state, err := e.HandleAction(ctx, "user-8", surface.ParsedUserAction{
		Kind:       surface.ActionCancel,
		WorkflowID: "onboarding",
		Surface:    surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-8"},
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome != engine.OutcomeCancelled || state != nil {
		t.Fatalf("expected cancelled with nil state, got %s / %+v", outcome, state)
	}
	if _, err := e.GetActiveWorkflow(ctx, "user-8"); err != engine.ErrNoActiveWorkflow {
		t.Fatalf("expected no active workflow after cancel, got %v", err)
	}
}

func TestBackMetaActionAtEmptyHistoryCancels(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedTool{})
	ctx := context.Background()
	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-9", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, _, err := e.HandleAction(ctx, "user-9", surface.ParsedUserAction{
		Kind:       surface.ActionBack,
		WorkflowID: "onboarding",
		Surface:    surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-9"},
	})
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if outcome != engine.OutcomeCancelled {
		t.Fatalf("expected back-at-empty-history to cancel, got %s", outcome)
	}
}

// twoChoiceWorkflow has two consecutive interactive choice steps so "back"
// can be exercised with a non-empty StepHistory and data recorded on the
// step being returned to.
func twoChoiceWorkflow() engine.WorkflowDefinition {
	return engine.WorkflowDefinition{
		ID:         "survey",
		EntryPoint: "favorite_color",
		Steps: map[string]engine.StepDefinition{
			"favorite_color": {
				Kind:    engine.StepChoice,
				Content: "Favorite color?",
				Options: []primitive.Option{
					{ID: "red", Label: "Red"},
					{ID: "blue", Label: "Blue"},
				},
				Next: "favorite_season",
			},
			"favorite_season": {
				Kind:    engine.StepChoice,
				Content: "Favorite season?",
				Options: []primitive.Option{
					{ID: "summer", Label: "Summer"},
					{ID: "winter", Label: "Winter"},
				},
				Next: "done",
			},
			"done": {
				Kind:     engine.StepInfo,
				Content:  "Thanks!",
				Terminal: true,
			},
		},
	}
}

func TestBackMetaActionClearsPoppedStepData(t *testing.T) {
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{}, engine.WithSweepInterval(0))
	if err := e.RegisterWorkflow(twoChoiceWorkflow()); err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	adapter := newFakeAdapter("chat")
	e.RegisterAdapter(adapter)
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "survey", "user-10", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	ref := surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-10"}
	if _, _, err := e.HandleAction(ctx, "user-10", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Value: "red", WorkflowID: "survey", StepID: "favorite_color", Surface: ref,
	}); err != nil {
		t.Fatalf("answer favorite_color: %v", err)
	}

	_, state, err := e.HandleAction(ctx, "user-10", surface.ParsedUserAction{
		Kind: surface.ActionBack, WorkflowID: "survey", StepID: "favorite_season", Surface: ref,
	})
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if state.CurrentStep != "favorite_color" {
		t.Fatalf("expected back to land on favorite_color, got %s", state.CurrentStep)
	}
	if len(state.StepHistory) != 0 {
		t.Fatalf("expected empty history after popping the only entry, got %v", state.StepHistory)
	}
	if _, ok := state.Data["favorite_color"]; ok {
		t.Fatalf("expected back to clear favorite_color's data, still present: %+v", state.Data["favorite_color"])
	}
}

func surveyWithMultiChoice() engine.WorkflowDefinition {
	return engine.WorkflowDefinition{
		ID:         "toppings",
		EntryPoint: "pick_toppings",
		Steps: map[string]engine.StepDefinition{
			"pick_toppings": {
				Kind:    engine.StepMultiChoice,
				Content: "Pick at least two toppings.",
				Options: []primitive.Option{
					{ID: "cheese", Label: "Cheese"},
					{ID: "pepperoni", Label: "Pepperoni"},
					{ID: "olives", Label: "Olives"},
				},
				MinSelections: 2,
				Next:          "done",
			},
			"done": {
				Kind:     engine.StepInfo,
				Content:  "Order placed!",
				Terminal: true,
			},
		},
	}
}

func TestMultiChoiceBelowMinSelectionsIsValidationError(t *testing.T) {
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{}, engine.WithSweepInterval(0))
	if err := e.RegisterWorkflow(surveyWithMultiChoice()); err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	adapter := newFakeAdapter("chat")
	e.RegisterAdapter(adapter)
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "toppings", "user-11", "chat", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	ref := surface.Ref{SurfaceID: "chat", SurfaceUserID: "user-11"}
	outcome, state, err := e.HandleAction(ctx, "user-11", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Values: []string{"cheese"}, WorkflowID: "toppings", StepID: "pick_toppings", Surface: ref,
	})
	if err != nil {
		t.Fatalf("handle action: %v", err)
	}
	if outcome != engine.OutcomeValidationError {
		t.Fatalf("expected validation-error, got %s", outcome)
	}
	if state.CurrentStep != "pick_toppings" {
		t.Fatalf("expected step unchanged, got %s", state.CurrentStep)
	}
	if len(adapter.sent) == 0 {
		t.Fatalf("expected a validation message sent to the user")
	}

	outcome, state, err = e.HandleAction(ctx, "user-11", surface.ParsedUserAction{
		Kind: surface.ActionSelection, Values: []string{"cheese", "olives"}, WorkflowID: "toppings", StepID: "pick_toppings", Surface: ref,
	})
	if err != nil {
		t.Fatalf("handle action: %v", err)
	}
	if outcome != engine.OutcomeCompleted {
		t.Fatalf("expected completion once minSelections is met, got %s", outcome)
	}
}

func TestStartWorkflowReplacesUsersOtherActiveWorkflow(t *testing.T) {
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{}, engine.WithSweepInterval(0))
	if err := e.RegisterWorkflow(threeStepWorkflow()); err != nil {
		t.Fatalf("register onboarding: %v", err)
	}
	if err := e.RegisterWorkflow(surveyWithMultiChoice()); err != nil {
		t.Fatalf("register toppings: %v", err)
	}
	e.RegisterAdapter(newFakeAdapter("chat"))
	ctx := context.Background()

	if _, _, err := e.StartWorkflow(ctx, "onboarding", "user-12", "chat", nil); err != nil {
		t.Fatalf("start onboarding: %v", err)
	}
	if _, _, err := e.StartWorkflow(ctx, "toppings", "user-12", "chat", nil); err != nil {
		t.Fatalf("start toppings: %v", err)
	}

	if _, err := st.Get(ctx, "user-12", "onboarding"); err != store.ErrNotFound {
		t.Fatalf("expected onboarding to be cleared once toppings started, got %v", err)
	}
	active, err := e.GetActiveWorkflow(ctx, "user-12")
	if err != nil {
		t.Fatalf("get active workflow: %v", err)
	}
	if active.WorkflowID != "toppings" {
		t.Fatalf("expected toppings to be the sole active workflow, got %s", active.WorkflowID)
	}
}

func TestSweeperDeletesExpiredState(t *testing.T) {
	st := store.NewMemStore()
	e := engine.New(st, &scriptedTool{}, engine.WithSweepInterval(10*time.Millisecond))
	defer e.Close()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if err := st.Create(ctx, &engine.WorkflowState{
		WorkflowID: "stale", UserID: "user-13", CurrentStep: "x",
		ExpiresAt: past, LastMessageIDs: map[string]string{},
	}); err != nil {
		t.Fatalf("seed expired state: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := st.Get(ctx, "user-13", "stale"); err == store.ErrNotFound {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired state was not swept in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
