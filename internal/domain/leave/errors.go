package leave

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrBadRequest             = errors.New("bad request")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidState           = errors.New("invalid state")
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
)

const (
	RuleDateRange   = "date_range"
	RuleLeaveType   = "leave_type"
	RuleAttachment  = "attachment"
	RuleMaxDuration = "max_duration"
	RuleTenure      = "tenure"
	RulePolicy      = "policy_eligibility"
	RuleBlockPeriod = "block_period"
	RuleAnnualCap   = "annual_cap"
	RuleBalance     = "balance"
	RuleOverlap     = "overlap"
	RuleTeam        = "team_conflict"
	RuleLedger      = "ledger"
	RuleUsage       = "usage"
)

// RuleError names the business rule a request violated.
type RuleError struct {
	Rule    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

func (e *RuleError) Unwrap() error {
	return ErrBadRequest
}

type InsufficientBalanceError struct {
	Available float64
	Requested float64
	Shortfall float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: requested %d days, available %s days, short by %s days",
		int(e.Requested), formatDays(e.Available), formatDays(e.Shortfall))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrBadRequest
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func formatDays(v float64) string {
	return fmt.Sprintf("%g", v)
}
