package payroll

import "context"

type StoreAPI interface {
	// InsertInput is idempotent per leave request.
	InsertInput(ctx context.Context, line InputLine) error
	ListInputs(ctx context.Context, employeeID string) ([]InputLine, error)
}
