package leave

import (
	"context"
	"time"
)

// StoreAPI is the persistence surface of the engine. Updates of entitlements
// and requests are conditional on Version: a stale version yields
// ErrConcurrentModification and a successful write increments Version.
type StoreAPI interface {
	InTx(ctx context.Context, fn func(StoreAPI) error) error

	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
	GetLeaveType(ctx context.Context, id string) (LeaveType, error)
	GetLeaveTypeByCode(ctx context.Context, code string) (LeaveType, error)
	CreateLeaveType(ctx context.Context, lt LeaveType) (LeaveType, error)
	UpdateLeaveType(ctx context.Context, lt LeaveType) error

	ListPolicies(ctx context.Context, activeOnly bool) ([]LeavePolicy, error)
	GetPolicy(ctx context.Context, id string) (LeavePolicy, error)
	ActivePolicyForType(ctx context.Context, leaveTypeID string) (LeavePolicy, error)
	CreatePolicy(ctx context.Context, p LeavePolicy) (LeavePolicy, error)
	UpdatePolicy(ctx context.Context, p LeavePolicy) error

	GetCalendar(ctx context.Context, year int) (Calendar, error)
	SaveCalendar(ctx context.Context, cal Calendar) error

	ListBlockPeriods(ctx context.Context, activeOnly bool) ([]BlockPeriod, error)
	CreateBlockPeriod(ctx context.Context, b BlockPeriod) (BlockPeriod, error)
	DeactivateBlockPeriod(ctx context.Context, id string) error

	CreateEntitlement(ctx context.Context, e LeaveEntitlement) (LeaveEntitlement, error)
	GetEntitlement(ctx context.Context, id string) (LeaveEntitlement, error)
	FindEntitlement(ctx context.Context, employeeID, leaveTypeID string) (LeaveEntitlement, error)
	ListEntitlements(ctx context.Context, filter EntitlementFilter) ([]LeaveEntitlement, error)
	UpdateEntitlement(ctx context.Context, e *LeaveEntitlement) error
	DeleteEntitlement(ctx context.Context, id string) error

	CreateAdjustment(ctx context.Context, a LeaveAdjustment) (LeaveAdjustment, error)
	ListAdjustments(ctx context.Context, employeeID string) ([]LeaveAdjustment, error)

	CreateRequest(ctx context.Context, r LeaveRequest) (LeaveRequest, error)
	GetRequest(ctx context.Context, id string) (LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)
	UpdateRequest(ctx context.Context, r *LeaveRequest) error

	CreateDelegation(ctx context.Context, d LeaveDelegation) (LeaveDelegation, error)
	ListDelegations(ctx context.Context, filter DelegationFilter) ([]LeaveDelegation, error)
	DeactivateDelegation(ctx context.Context, id string) error

	FindOpenPattern(ctx context.Context, employeeID, patternType string) (LeavePattern, error)
	GetPattern(ctx context.Context, id string) (LeavePattern, error)
	ListPatterns(ctx context.Context, employeeID string, openOnly bool) ([]LeavePattern, error)
	SavePattern(ctx context.Context, p LeavePattern) (LeavePattern, error)

	// RecordAccrualRun returns false when the period was already recorded.
	RecordAccrualRun(ctx context.Context, policyID string, periodStart time.Time) (bool, error)
}
