package audit

import (
	"context"
	"strings"
	"testing"
)

func TestBuildQueryAddsFiltersInOrder(t *testing.T) {
	query, args := buildQuery(Filter{EntityType: "leave_request", ActorID: "hr-1"})
	if !strings.Contains(query, "entity_type = $1") || !strings.Contains(query, "actor_id = $2") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 2 || args[0] != "leave_request" || args[1] != "hr-1" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestMemoryRecordsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Record(ctx, Event{Action: "leave.adjust", EntityType: "leave_entitlement", EntityID: "e1"}, nil, map[string]float64{"yearly": 12})
	_ = m.Record(ctx, Event{Action: "leave.override", EntityType: "leave_request", EntityID: "r1"}, nil, nil)

	events, err := m.List(ctx, Filter{}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].Action != "leave.override" {
		t.Fatalf("unexpected order: %+v", events)
	}
	if string(events[1].After) != `{"yearly":12}` {
		t.Fatalf("unexpected payload: %s", events[1].After)
	}

	filtered, _ := m.List(ctx, Filter{EntityType: "leave_entitlement"}, 10, 0)
	if len(filtered) != 1 || filtered[0].EntityID != "e1" {
		t.Fatalf("unexpected filtered events: %+v", filtered)
	}
}
