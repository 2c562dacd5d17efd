package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flowmesh/workflow/engine"
	"github.com/flowmesh/workflow/hook"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

type fakeAdapter struct {
	surfaceID string
	parse     func(rawEvent any) (*surface.ParsedUserAction, error)
}

func (a *fakeAdapter) SurfaceID() string                           { return a.surfaceID }
func (a *fakeAdapter) Version() string                             { return "1.0.0" }
func (a *fakeAdapter) Capabilities() primitive.SurfaceCapabilities { return primitive.SurfaceCapabilities{} }
func (a *fakeAdapter) Render(ctx context.Context, target surface.Ref, workflowID, stepID string, p primitive.Primitive) (surface.RenderedMessage, error) {
	return surface.RenderedMessage{}, nil
}
func (a *fakeAdapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) {
	return a.parse(rawEvent)
}
func (a *fakeAdapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	return "", nil
}
func (a *fakeAdapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return nil
}
func (a *fakeAdapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return nil
}
func (a *fakeAdapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	return nil
}

type fakeRegistry struct {
	adapters map[string]surface.Adapter
}

func (r *fakeRegistry) Adapter(surfaceID string) (surface.Adapter, bool) {
	a, ok := r.adapters[surfaceID]
	return a, ok
}

type fakeEngine struct {
	gotAction surface.ParsedUserAction
	outcome   engine.Outcome
	err       error
	calls     int
}

func (e *fakeEngine) HandleAction(ctx context.Context, userID string, action surface.ParsedUserAction) (engine.Outcome, *engine.WorkflowState, error) {
	e.calls++
	e.gotAction = action
	return e.outcome, nil, e.err
}

func TestDispatchRoutesRecognizedAction(t *testing.T) {
	adapter := &fakeAdapter{surfaceID: "chat", parse: func(rawEvent any) (*surface.ParsedUserAction, error) {
		return &surface.ParsedUserAction{Kind: surface.ActionSelection, Value: "basic", WorkflowID: "wf", StepID: "step"}, nil
	}}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"chat": adapter}}
	eng := &fakeEngine{outcome: engine.OutcomeAdvanced}
	d := hook.New(eng, reg)

	result, err := d.Dispatch(context.Background(), "chat", "u1", "raw")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected Handled=true")
	}
	if result.Outcome != engine.OutcomeAdvanced {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if eng.calls != 1 {
		t.Fatalf("expected exactly one HandleAction call, got %d", eng.calls)
	}
	if eng.gotAction.Surface.SurfaceID != "chat" {
		t.Fatalf("expected surfaceId stamped onto the action, got %q", eng.gotAction.Surface.SurfaceID)
	}
}

func TestDispatchReturnsUnhandledForNonWorkflowEvent(t *testing.T) {
	adapter := &fakeAdapter{surfaceID: "chat", parse: func(rawEvent any) (*surface.ParsedUserAction, error) {
		return nil, nil
	}}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"chat": adapter}}
	eng := &fakeEngine{}
	d := hook.New(eng, reg)

	result, err := d.Dispatch(context.Background(), "chat", "u1", "raw")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.Handled {
		t.Fatalf("expected Handled=false for a non-workflow event")
	}
	if eng.calls != 0 {
		t.Fatalf("expected the engine not to be called, got %d calls", eng.calls)
	}
}

func TestDispatchPropagatesEngineError(t *testing.T) {
	adapter := &fakeAdapter{surfaceID: "chat", parse: func(rawEvent any) (*surface.ParsedUserAction, error) {
		return &surface.ParsedUserAction{Kind: surface.ActionCancel, WorkflowID: "wf"}, nil
	}}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"chat": adapter}}
	wantErr := errors.New("boom")
	eng := &fakeEngine{outcome: engine.OutcomeCancelled, err: wantErr}
	d := hook.New(eng, reg)

	result, err := d.Dispatch(context.Background(), "chat", "u1", "raw")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if !result.Handled {
		t.Fatalf("expected Handled=true even on engine error, since the event was recognized")
	}
}

func TestDispatchUnknownSurface(t *testing.T) {
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{}}
	eng := &fakeEngine{}
	d := hook.New(eng, reg)

	_, err := d.Dispatch(context.Background(), "missing", "u1", "raw")
	if err == nil {
		t.Fatalf("expected an error for an unregistered surface")
	}
}
