package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hrleave/internal/domain/leave"
)

func TestLinkLeaveCreatesDeductionForUnpaidLeave(t *testing.T) {
	ctx := context.Background()
	linker := NewLeaveLinker(NewMemoryStore())
	req := leave.LeaveRequest{
		ID:           "req-1",
		EmployeeID:   "emp",
		From:         time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC),
		DurationDays: 3,
	}
	unpaid := leave.LeaveType{Code: "UL", Paid: false}

	if err := linker.LinkLeave(ctx, req, unpaid); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := linker.LinkLeave(ctx, req, unpaid); err != nil {
		t.Fatalf("relink: %v", err)
	}

	summary, err := linker.Summary(ctx, "emp")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(summary.Lines))
	}
	line := summary.Lines[0]
	if line.ElementType != ElementTypeDeduction || line.ElementCode != ElementCodeUnpaidLeave {
		t.Fatalf("unexpected line: %+v", line)
	}
	if !summary.Deductions.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 deducted days, got %s", summary.Deductions)
	}
}

func TestLinkLeaveIgnoresPaidLeave(t *testing.T) {
	ctx := context.Background()
	linker := NewLeaveLinker(NewMemoryStore())
	req := leave.LeaveRequest{ID: "req-2", EmployeeID: "emp", DurationDays: 2}

	if err := linker.LinkLeave(ctx, req, leave.LeaveType{Code: "AL", Paid: true}); err != nil {
		t.Fatalf("link: %v", err)
	}
	summary, _ := linker.Summary(ctx, "emp")
	if len(summary.Lines) != 0 {
		t.Fatalf("expected no lines for paid leave, got %d", len(summary.Lines))
	}
}
