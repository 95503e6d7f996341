package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// InputLine is a payroll input produced from an approved leave request.
// Units are leave days; Amount is left empty for payroll to price.
type InputLine struct {
	ID             string           `json:"id"`
	EmployeeID     string           `json:"employeeId"`
	LeaveRequestID string           `json:"leaveRequestId"`
	ElementType    string           `json:"elementType"`
	ElementCode    string           `json:"elementCode"`
	Units          decimal.Decimal  `json:"units"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PeriodStart    time.Time        `json:"periodStart"`
	PeriodEnd      time.Time        `json:"periodEnd"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type Summary struct {
	EmployeeID string          `json:"employeeId"`
	Lines      []InputLine     `json:"lines"`
	Earnings   decimal.Decimal `json:"earnings"`
	Deductions decimal.Decimal `json:"deductions"`
}
