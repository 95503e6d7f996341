package leave

import (
	"context"
	"time"

	"hrleave/internal/domain/core"
)

type Directory interface {
	GetProfile(ctx context.Context, employeeID string) (core.Profile, error)
}

type OrgStructure interface {
	GetDirectReports(ctx context.Context, managerID string) ([]string, error)
	GetEmployeeHoldingPosition(ctx context.Context, positionID string) (string, error)
	GetPositionByID(ctx context.Context, positionID string) (core.Position, error)
}

// Notifier calls are fire-and-forget; errors are logged by the caller.
type Notifier interface {
	SendLeaveRequestNotification(ctx context.Context, req LeaveRequest, approverID string) error
	SendLeaveApprovedNotification(ctx context.Context, req LeaveRequest) error
	SendLeaveRejectedNotification(ctx context.Context, req LeaveRequest, reason string) error
	SendEscalationNotification(ctx context.Context, req LeaveRequest) error
	SendDelegationNotification(ctx context.Context, req LeaveRequest, delegateID string) error
}

type TimeException struct {
	EmployeeID     string
	LeaveRequestID string
	Type           string
	Status         string
	Reason         string
	From           time.Time
	To             time.Time
}

type TimeSync interface {
	CreateTimeException(ctx context.Context, exc TimeException) error
}

type PayrollSync interface {
	LinkLeave(ctx context.Context, req LeaveRequest, lt LeaveType) error
}

type noopNotifier struct{}

func (noopNotifier) SendLeaveRequestNotification(context.Context, LeaveRequest, string) error {
	return nil
}
func (noopNotifier) SendLeaveApprovedNotification(context.Context, LeaveRequest) error { return nil }
func (noopNotifier) SendLeaveRejectedNotification(context.Context, LeaveRequest, string) error {
	return nil
}
func (noopNotifier) SendEscalationNotification(context.Context, LeaveRequest) error { return nil }
func (noopNotifier) SendDelegationNotification(context.Context, LeaveRequest, string) error {
	return nil
}

type noopTimeSync struct{}

func (noopTimeSync) CreateTimeException(context.Context, TimeException) error { return nil }

type noopPayrollSync struct{}

func (noopPayrollSync) LinkLeave(context.Context, LeaveRequest, LeaveType) error { return nil }
