package inlinekeyboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowmesh/workflow/adapter/inlinekeyboard"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

func newServer(t *testing.T, onRequest func(path string, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if onRequest != nil {
			onRequest(r.URL.Path, body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "msg-1"})
	}))
}

func TestRenderChoiceNative(t *testing.T) {
	var gotPath string
	var gotButtons []any
	srv := newServer(t, func(path string, body map[string]any) {
		gotPath = path
		if b, ok := body["buttons"].([]any); ok {
			gotButtons = b
		}
	})
	defer srv.Close()

	a := inlinekeyboard.New(srv.URL)
	target := surface.Ref{SurfaceID: "inline-keyboard", SurfaceUserID: "u1"}
	p := primitive.Primitive{
		Kind:    primitive.KindChoice,
		Content: "Pick a plan",
		Options: []primitive.Option{{ID: "basic", Label: "Basic"}, {ID: "pro", Label: "Pro"}},
	}

	msg, err := a.Render(context.Background(), target, "onboarding", "ask_plan", p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.MessageID != "msg-1" {
		t.Fatalf("MessageID = %q, want msg-1", msg.MessageID)
	}
	if msg.UsedFallback {
		t.Fatalf("expected native render, got fallback")
	}
	if gotPath != "/sendMessage" {
		t.Fatalf("path = %q, want /sendMessage", gotPath)
	}
	if len(gotButtons) == 0 {
		t.Fatalf("expected button rows in request body")
	}
}

func TestRenderOversizedChoiceFallsBackToText(t *testing.T) {
	// Force a text fallback by exceeding the button budget.
	var gotText string
	srv := newServer(t, func(_ string, body map[string]any) {
		gotText, _ = body["text"].(string)
	})
	defer srv.Close()

	a := inlinekeyboard.New(srv.URL)
	target := surface.Ref{SurfaceID: "inline-keyboard", SurfaceUserID: "u1"}
	opts := make([]primitive.Option, 0, 20)
	for i := 0; i < 20; i++ {
		opts = append(opts, primitive.Option{ID: "o", Label: "Option"})
	}
	p := primitive.Primitive{Kind: primitive.KindChoice, Content: "Pick one", Options: opts}

	msg, err := a.Render(context.Background(), target, "wf", "step", p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !msg.UsedFallback {
		t.Fatalf("expected fallback render for oversized option list")
	}
	if gotText == "" {
		t.Fatalf("expected non-empty fallback text")
	}
}

func TestParseActionDecodesSelection(t *testing.T) {
	a := inlinekeyboard.New("http://unused")
	ev := inlinekeyboard.CallbackEvent{UserID: "u1", Data: surface.EncodeActionID("onboarding", "ask_plan", "basic")}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action == nil {
		t.Fatalf("expected a parsed action")
	}
	if action.Kind != surface.ActionSelection || action.Value != "basic" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if action.WorkflowID != "onboarding" || action.StepID != "ask_plan" {
		t.Fatalf("unexpected workflow/step: %+v", action)
	}
}

func TestParseActionDecodesCancel(t *testing.T) {
	a := inlinekeyboard.New("http://unused")
	ev := inlinekeyboard.CallbackEvent{UserID: "u1", Data: surface.EncodeActionID("onboarding", "ask_plan", surface.ActionIDCancel)}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action.Kind != surface.ActionCancel {
		t.Fatalf("Kind = %v, want ActionCancel", action.Kind)
	}
}

func TestParseActionIgnoresPlainText(t *testing.T) {
	a := inlinekeyboard.New("http://unused")
	ev := inlinekeyboard.CallbackEvent{UserID: "u1", Text: "hello"}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action != nil {
		t.Fatalf("expected nil action for bare text, got %+v", action)
	}
}

func TestParseActionRejectsMalformedCallback(t *testing.T) {
	a := inlinekeyboard.New("http://unused")
	ev := inlinekeyboard.CallbackEvent{UserID: "u1", Data: "not-a-valid-encoding"}

	_, err := a.ParseAction(ev)
	if err == nil {
		t.Fatalf("expected an error for malformed callback data")
	}
}
