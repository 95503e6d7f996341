package timemgmt

import (
	"context"
	"testing"
	"time"

	"hrleave/internal/domain/leave"
)

func TestMemoryStoreIsIdempotentPerRequest(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	exc := leave.TimeException{
		EmployeeID:     "emp",
		LeaveRequestID: "req-1",
		Type:           "LEAVE",
		From:           time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < 2; i++ {
		if err := m.CreateTimeException(ctx, exc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, err := m.ListExceptions(ctx, "emp")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one exception, got %d", len(items))
	}
	if !items[0].EndDate.Equal(exc.To) {
		t.Fatalf("unexpected end date %v", items[0].EndDate)
	}
}
