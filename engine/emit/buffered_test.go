package emit

import (
	"context"
	"testing"
)

func TestBufferedEmitter_HistoryOrderAndIsolation(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{UserID: "u1", WorkflowID: "onboarding", Msg: "started"})
	b.Emit(Event{UserID: "u1", WorkflowID: "onboarding", Msg: "advanced"})
	b.Emit(Event{UserID: "u2", WorkflowID: "onboarding", Msg: "started"})

	got := b.History("u1", "onboarding")
	if len(got) != 2 || got[0].Msg != "started" || got[1].Msg != "advanced" {
		t.Fatalf("unexpected history: %+v", got)
	}
	if len(b.History("u2", "onboarding")) != 1 {
		t.Fatal("expected isolated history per (user, workflow)")
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{UserID: "u1", WorkflowID: "wf", Msg: "x"})
	b.Clear("u1", "wf")
	if len(b.History("u1", "wf")) != 0 {
		t.Fatal("expected history cleared")
	}
}

func TestBufferedEmitter_EmitBatch(t *testing.T) {
	b := NewBufferedEmitter()
	events := []Event{{UserID: "u", WorkflowID: "wf", Msg: "a"}, {UserID: "u", WorkflowID: "wf", Msg: "b"}}
	if err := b.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.History("u", "wf")) != 2 {
		t.Fatal("expected both events recorded")
	}
}
