package core

import (
	"context"
	"errors"
	"testing"
)

func TestResolveActor(t *testing.T) {
	actor, err := ResolveActor("emp-1", "cand-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.Kind != ActorEmployee || actor.ID != "emp-1" {
		t.Fatalf("expected employee actor, got %#v", actor)
	}

	actor, err = ResolveActor("", "cand-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.Kind != ActorCandidate || actor.IsEmployee() {
		t.Fatalf("expected candidate actor, got %#v", actor)
	}

	if _, err := ResolveActor("", ""); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestMemoryDirectReports(t *testing.T) {
	m := NewMemory()
	m.PutPosition(Position{ID: "pos-lead", Title: "Lead"})
	m.PutPosition(Position{ID: "pos-dev", Title: "Developer", SupervisorPositionID: "pos-lead"})
	m.PutProfile(Profile{EmployeeID: "lead", PrimaryPositionID: "pos-lead", Status: "ACTIVE"})
	m.PutProfile(Profile{EmployeeID: "dev-1", PrimaryPositionID: "pos-dev", Status: "ACTIVE"})
	m.PutProfile(Profile{EmployeeID: "dev-2", PrimaryPositionID: "pos-dev", Status: "ACTIVE"})
	m.PutProfile(Profile{EmployeeID: "dev-3", PrimaryPositionID: "pos-dev", Status: "TERMINATED"})

	ctx := context.Background()
	reports, err := m.GetDirectReports(ctx, "lead")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 || reports[0] != "dev-1" || reports[1] != "dev-2" {
		t.Fatalf("unexpected reports: %v", reports)
	}

	profile, err := m.GetProfile(ctx, "dev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.SupervisorPositionID != "pos-lead" {
		t.Fatalf("expected supervisor position from position tree, got %q", profile.SupervisorPositionID)
	}

	holder, err := m.GetEmployeeHoldingPosition(ctx, "pos-lead")
	if err != nil || holder != "lead" {
		t.Fatalf("expected lead, got %q (%v)", holder, err)
	}

	if _, err := m.GetProfile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
