package payroll

const (
	ElementTypeEarning   = "earning"
	ElementTypeDeduction = "deduction"

	// ElementCodeUnpaidLeave is used when the leave type carries no payroll code.
	ElementCodeUnpaidLeave = "UNPAID_LEAVE"
)
