package store

import (
	"context"
	"testing"
)

func TestFileStore_CreateGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	st := sampleState("u1", "onboarding")
	if err := s.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, sampleState("u1", "onboarding")); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	got, err := s.Get(ctx, "u1", "onboarding")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentStep != "welcome" {
		t.Fatalf("got currentStep=%q", got.CurrentStep)
	}

	if err := s.Delete(ctx, "u1", "onboarding"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "u1", "onboarding"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s1.Create(ctx, sampleState("u1", "onboarding")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	got, err := s2.Get(ctx, "u1", "onboarding")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.WorkflowID != "onboarding" {
		t.Fatalf("got %+v", got)
	}
}

func TestFileStore_ListAllAcrossUsers(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	_ = s.Create(ctx, sampleState("u1", "onboarding"))
	_ = s.Create(ctx, sampleState("u2", "payment"))

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d states, want 2", len(all))
	}
}

func TestFileStore_GetActiveForUserUnknown(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.GetActiveForUser(ctx, "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
