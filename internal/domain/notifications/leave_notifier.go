package notifications

import (
	"context"
	"fmt"

	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
)

// HRDirectory resolves the mailboxes that receive escalations.
type HRDirectory interface {
	HRContacts(ctx context.Context) ([]string, error)
}

// LeaveNotifier turns leave lifecycle events into notifications for the
// requester, the approver or HR.
type LeaveNotifier struct {
	Service   *Service
	Directory leave.Directory
	HR        HRDirectory
	HRMailbox string
}

var _ leave.Notifier = (*LeaveNotifier)(nil)

func NewLeaveNotifier(svc *Service, directory leave.Directory, hr HRDirectory, hrMailbox string) *LeaveNotifier {
	return &LeaveNotifier{Service: svc, Directory: directory, HR: hr, HRMailbox: hrMailbox}
}

func period(req leave.LeaveRequest) string {
	return fmt.Sprintf("%s to %s (%d working days)", req.From.Format("2006-01-02"), req.To.Format("2006-01-02"), req.DurationDays)
}

func (n *LeaveNotifier) profile(ctx context.Context, employeeID string) core.Profile {
	if n.Directory == nil || employeeID == "" {
		return core.Profile{EmployeeID: employeeID}
	}
	p, err := n.Directory.GetProfile(ctx, employeeID)
	if err != nil {
		return core.Profile{EmployeeID: employeeID}
	}
	return p
}

func displayName(p core.Profile) string {
	if p.FullName != "" {
		return p.FullName
	}
	return "An employee"
}

func (n *LeaveNotifier) notifyHR(ctx context.Context, ntype, title, body string) error {
	addresses := []string{}
	if n.HR != nil {
		contacts, err := n.HR.HRContacts(ctx)
		if err != nil {
			return err
		}
		addresses = append(addresses, contacts...)
	}
	if len(addresses) == 0 && n.HRMailbox != "" {
		addresses = append(addresses, n.HRMailbox)
	}
	for _, addr := range addresses {
		if err := n.Service.Create(ctx, "", addr, ntype, title, body); err != nil {
			return err
		}
	}
	return nil
}

func (n *LeaveNotifier) SendLeaveRequestNotification(ctx context.Context, req leave.LeaveRequest, approverID string) error {
	requester := n.profile(ctx, req.EmployeeID)
	title := "Leave request awaiting approval"
	body := fmt.Sprintf("%s requested leave from %s.", displayName(requester), period(req))
	if approverID == "" {
		return n.notifyHR(ctx, TypeLeaveSubmitted, title, body)
	}
	approver := n.profile(ctx, approverID)
	return n.Service.Create(ctx, approverID, approver.WorkEmail, TypeLeaveSubmitted, title, body)
}

func (n *LeaveNotifier) SendLeaveApprovedNotification(ctx context.Context, req leave.LeaveRequest) error {
	employee := n.profile(ctx, req.EmployeeID)
	body := fmt.Sprintf("Your leave from %s has been approved.", period(req))
	return n.Service.Create(ctx, req.EmployeeID, employee.WorkEmail, TypeLeaveApproved, "Leave approved", body)
}

func (n *LeaveNotifier) SendLeaveRejectedNotification(ctx context.Context, req leave.LeaveRequest, reason string) error {
	employee := n.profile(ctx, req.EmployeeID)
	body := fmt.Sprintf("Your leave from %s has been rejected.", period(req))
	if reason != "" {
		body += " Reason: " + reason
	}
	return n.Service.Create(ctx, req.EmployeeID, employee.WorkEmail, TypeLeaveRejected, "Leave rejected", body)
}

func (n *LeaveNotifier) SendEscalationNotification(ctx context.Context, req leave.LeaveRequest) error {
	requester := n.profile(ctx, req.EmployeeID)
	body := fmt.Sprintf("The leave request of %s for %s was not decided by the line manager in time and needs HR review.",
		displayName(requester), period(req))
	return n.notifyHR(ctx, TypeLeaveEscalated, "Leave request escalated", body)
}

func (n *LeaveNotifier) SendDelegationNotification(ctx context.Context, req leave.LeaveRequest, delegateID string) error {
	requester := n.profile(ctx, req.EmployeeID)
	delegate := n.profile(ctx, delegateID)
	body := fmt.Sprintf("The leave request of %s for %s was delegated to you for a decision.", displayName(requester), period(req))
	return n.Service.Create(ctx, delegateID, delegate.WorkEmail, TypeLeaveDelegated, "Leave request delegated", body)
}
