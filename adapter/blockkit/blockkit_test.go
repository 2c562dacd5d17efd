package blockkit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowmesh/workflow/adapter/blockkit"
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

func TestRenderMultiChoiceUsesNativeMultiSelect(t *testing.T) {
	var gotPath string
	var gotBlocks []any
	srv := newServer(t, func(path string, body map[string]any) {
		gotPath = path
		gotBlocks, _ = body["blocks"].([]any)
	})
	defer srv.Close()

	a := blockkit.New(srv.URL)
	target := surface.Ref{SurfaceID: "block-kit", ChannelID: "c1"}
	p := primitive.Primitive{
		Kind:    primitive.KindMultiChoice,
		Content: "Pick features",
		Options: []primitive.Option{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
	}

	msg, err := a.Render(context.Background(), target, "wf", "step", p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.UsedFallback {
		t.Fatalf("expected native multi-select render")
	}
	if gotPath != "/chat.postMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(gotBlocks) < 2 {
		t.Fatalf("expected a text block plus an actions block, got %d", len(gotBlocks))
	}
}

func TestRenderConfirmNative(t *testing.T) {
	srv := newServer(t, nil)
	defer srv.Close()

	a := blockkit.New(srv.URL)
	target := surface.Ref{SurfaceID: "block-kit", ChannelID: "c1"}
	p := primitive.Primitive{Kind: primitive.KindConfirm, Content: "Proceed?", YesLabel: "Yes", NoLabel: "No"}

	msg, err := a.Render(context.Background(), target, "wf", "step", p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.UsedFallback {
		t.Fatalf("confirm should render natively on block-kit")
	}
}

func TestParseActionBlockClick(t *testing.T) {
	a := blockkit.New("http://unused")
	ev := blockkit.InteractionEvent{
		UserID: "u1", ChannelID: "c1",
		ActionID: surface.EncodeActionID("wf", "step", "basic"),
	}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action.Kind != surface.ActionSelection || action.Value != "basic" {
		t.Fatalf("unexpected action: %+v", action)
	}
}

func TestParseActionModalSubmission(t *testing.T) {
	a := blockkit.New("http://unused")
	ev := blockkit.InteractionEvent{
		UserID: "u1", ChannelID: "c1",
		ModalID: surface.EncodeModalID("wf", "step"),
		Fields:  map[string]string{"note": "hello"},
	}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action.Kind != surface.ActionText || action.Text != "hello" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if action.WorkflowID != "wf" || action.StepID != "step" {
		t.Fatalf("unexpected workflow/step: %+v", action)
	}
}

func TestParseActionMultiSelect(t *testing.T) {
	a := blockkit.New("http://unused")
	ev := blockkit.InteractionEvent{
		UserID: "u1", ChannelID: "c1",
		ActionID: surface.EncodeActionID("wf", "step", "multi"),
		Values: []string{
			surface.EncodeActionID("wf", "step", "a"),
			surface.EncodeActionID("wf", "step", "b"),
		},
	}

	action, err := a.ParseAction(ev)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if len(action.Values) != 2 || action.Values[0] != "a" || action.Values[1] != "b" {
		t.Fatalf("unexpected values: %+v", action.Values)
	}
}
