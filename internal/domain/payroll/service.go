package payroll

import (
	"context"

	"github.com/shopspring/decimal"

	"hrleave/internal/domain/leave"
)

// LeaveLinker feeds approved unpaid leave into payroll as deduction inputs.
// Paid leave needs no payroll input and is ignored.
type LeaveLinker struct {
	store StoreAPI
}

var _ leave.PayrollSync = (*LeaveLinker)(nil)

func NewLeaveLinker(store StoreAPI) *LeaveLinker {
	return &LeaveLinker{store: store}
}

func (l *LeaveLinker) LinkLeave(ctx context.Context, req leave.LeaveRequest, lt leave.LeaveType) error {
	if !lt.Unpaid() || req.DurationDays <= 0 {
		return nil
	}
	code := lt.PayrollCode
	if code == "" {
		code = ElementCodeUnpaidLeave
	}
	return l.store.InsertInput(ctx, InputLine{
		EmployeeID:     req.EmployeeID,
		LeaveRequestID: req.ID,
		ElementType:    ElementTypeDeduction,
		ElementCode:    code,
		Units:          decimal.NewFromInt(int64(req.DurationDays)),
		PeriodStart:    req.From,
		PeriodEnd:      req.To,
	})
}

func (l *LeaveLinker) Summary(ctx context.Context, employeeID string) (Summary, error) {
	lines, err := l.store.ListInputs(ctx, employeeID)
	if err != nil {
		return Summary{}, err
	}
	earnings, deductions := Totals(lines)
	return Summary{EmployeeID: employeeID, Lines: lines, Earnings: earnings, Deductions: deductions}, nil
}
