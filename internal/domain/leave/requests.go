package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"hrleave/internal/domain/core"
)

type SubmitInput struct {
	LeaveTypeID         string
	From                time.Time
	To                  time.Time
	Justification       string
	AttachmentID        string
	EnforceTeamConflict bool
}

type AmendInput struct {
	From          time.Time
	To            time.Time
	Justification *string
	AttachmentID  *string
	Reason        string
}

type EscalationResult struct {
	Checked    int      `json:"checked"`
	Escalated  int      `json:"escalated"`
	Failed     int      `json:"failed"`
	RequestIDs []string `json:"requestIds"`
}

// ledgerDelta is the balance movement a transition applies to its entitlement.
type ledgerDelta struct {
	pending float64
	taken   float64
}

func (d ledgerDelta) isZero() bool {
	return d.pending == 0 && d.taken == 0
}

func (s *Service) profile(ctx context.Context, employeeID string) (core.Profile, error) {
	if s.Directory == nil {
		return core.Profile{}, errors.New("employee directory not configured")
	}
	p, err := s.Directory.GetProfile(ctx, employeeID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Profile{}, notFound("employee")
	}
	return p, err
}

// supervisorPosition prefers the profile's own supervisor position and falls
// back to the reporting line of the employee's primary position.
func (s *Service) supervisorPosition(ctx context.Context, profile core.Profile) (string, error) {
	if profile.SupervisorPositionID != "" || profile.PrimaryPositionID == "" {
		return profile.SupervisorPositionID, nil
	}
	pos, err := s.Org.GetPositionByID(ctx, profile.PrimaryPositionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return pos.ReportingLine(), nil
}

// approverFor resolves the employee holding the requester's supervisor position.
func (s *Service) approverFor(ctx context.Context, profile core.Profile) string {
	if s.Org == nil {
		return ""
	}
	positionID, err := s.supervisorPosition(ctx, profile)
	if err != nil {
		slog.Warn("leave approver lookup failed", "employeeId", profile.EmployeeID, "err", err)
		return ""
	}
	if positionID == "" {
		return ""
	}
	id, err := s.Org.GetEmployeeHoldingPosition(ctx, positionID)
	if err != nil {
		slog.Warn("leave approver lookup failed", "employeeId", profile.EmployeeID, "err", err)
		return ""
	}
	return id
}

func (s *Service) Submit(ctx context.Context, actor core.Actor, in SubmitInput) (LeaveRequest, error) {
	if !actor.IsEmployee() {
		return LeaveRequest{}, fmt.Errorf("%w: only employees can submit leave requests", ErrForbidden)
	}
	if in.From.IsZero() || in.To.IsZero() {
		return LeaveRequest{}, &RuleError{Rule: RuleDateRange, Message: "from and to dates are required"}
	}
	profile, err := s.profile(ctx, actor.ID)
	if err != nil {
		return LeaveRequest{}, err
	}
	lt, err := s.Store.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return LeaveRequest{}, err
	}
	from, to := DateOnly(in.From), DateOnly(in.To)
	duration := 0
	if !to.Before(from) {
		if duration, err = s.Duration(ctx, from, to); err != nil {
			return LeaveRequest{}, err
		}
	}

	var created LeaveRequest
	err = s.Store.InTx(ctx, func(store StoreAPI) error {
		if err := s.validate(ctx, store, candidate{
			profile:      profile,
			leaveType:    lt,
			from:         from,
			to:           to,
			duration:     duration,
			attachmentID: in.AttachmentID,
		}); err != nil {
			return err
		}
		if in.EnforceTeamConflict {
			tc, err := s.teamConflict(ctx, store, actor.ID, from, to)
			if err != nil {
				return err
			}
			if tc.Conflict {
				return &RuleError{Rule: RuleTeam, Message: fmt.Sprintf("%d of %d team members are already on approved leave in this period", tc.OnLeave, tc.TeamSize)}
			}
		}

		now := s.now()
		req, err := store.CreateRequest(ctx, LeaveRequest{
			EmployeeID:    actor.ID,
			LeaveTypeID:   lt.ID,
			From:          from,
			To:            to,
			DurationDays:  duration,
			Justification: in.Justification,
			AttachmentID:  in.AttachmentID,
			Status:        StatusPending,
			ApprovalFlow:  []ApprovalStep{{Role: RoleLineManager, Status: StatusPending}},
			SubmittedAt:   now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		if _, err := s.mutateEntitlement(ctx, store, byKey(ctx, actor.ID, lt.ID), func(e *LeaveEntitlement) error {
			// Re-checked on every attempt: a retry sees a row another writer changed.
			if err := checkBalance(*e, duration); err != nil {
				return err
			}
			e.Pending += float64(duration)
			return nil
		}); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}

	approverID := s.approverFor(ctx, profile)
	sideEffect("request_notification", created.ID, func() error {
		return s.Notifier.SendLeaveRequestNotification(detached(ctx), created, approverID)
	})
	return created, nil
}

// mutateRequest applies fn to the current request and writes it back
// conditionally on its version. fn reports the ledger movement to apply.
func (s *Service) mutateRequest(ctx context.Context, store StoreAPI, id string, fn func(*LeaveRequest) (ledgerDelta, error)) (LeaveRequest, ledgerDelta, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		req, err := store.GetRequest(ctx, id)
		if err != nil {
			return LeaveRequest{}, ledgerDelta{}, err
		}
		delta, err := fn(&req)
		if err != nil {
			return LeaveRequest{}, ledgerDelta{}, err
		}
		req.UpdatedAt = s.now()
		err = store.UpdateRequest(ctx, &req)
		if err == nil {
			return req, delta, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return LeaveRequest{}, ledgerDelta{}, err
		}
		lastErr = err
	}
	return LeaveRequest{}, ledgerDelta{}, lastErr
}

// transition persists a request change and its ledger movement atomically.
func (s *Service) transition(ctx context.Context, id string, fn func(*LeaveRequest) (ledgerDelta, error)) (LeaveRequest, error) {
	var out LeaveRequest
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		req, delta, err := s.mutateRequest(ctx, store, id, fn)
		if err != nil {
			return err
		}
		if !delta.isZero() {
			if _, err := s.mutateEntitlement(ctx, store, byKey(ctx, req.EmployeeID, req.LeaveTypeID), func(e *LeaveEntitlement) error {
				applyDelta(e, req, delta)
				return nil
			}); err != nil {
				return err
			}
		}
		out = req
		return nil
	})
	return out, err
}

// applyDelta moves the ledger for a transition. A request submitted before the
// entitlement's last year-end reset had its pending days cleared by that
// reset, so releasing it never drives pending below zero.
func applyDelta(e *LeaveEntitlement, req LeaveRequest, d ledgerDelta) {
	pending := d.pending
	if pending < 0 && e.NextResetDate != nil && e.Pending+pending < 0 {
		yearStart := e.NextResetDate.AddDate(-1, 0, 0)
		if req.SubmittedAt.Before(yearStart) {
			pending = -e.Pending
		}
	}
	e.Pending += pending
	e.Taken += d.taken
}

func (s *Service) decide(step *ApprovalStep, status, actorID, comment string) {
	now := s.now()
	step.Status = status
	step.DecidedBy = actorID
	step.DecidedAt = &now
	step.Comment = comment
}

func (s *Service) ManagerApprove(ctx context.Context, id, approverID, comment string) (LeaveRequest, error) {
	return s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		if req.EmployeeID == approverID {
			return ledgerDelta{}, fmt.Errorf("%w: employees cannot approve their own leave", ErrForbidden)
		}
		idx := req.Step(RoleLineManager)
		if req.Status != StatusPending || idx < 0 || req.ApprovalFlow[idx].Status != StatusPending {
			return ledgerDelta{}, invalidState("leave request is not awaiting manager approval")
		}
		s.decide(&req.ApprovalFlow[idx], StatusApproved, approverID, comment)
		if req.Step(RoleHRAdmin) < 0 {
			req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{Role: RoleHRAdmin, Status: StatusPending})
		}
		return ledgerDelta{}, nil
	})
}

// ManagerReject decides an open line_manager step. Once the manager has
// approved, the request waits on the hr stage and only HRReject can reject it.
func (s *Service) ManagerReject(ctx context.Context, id, approverID, reason string) (LeaveRequest, error) {
	req, err := s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		if req.EmployeeID == approverID {
			return ledgerDelta{}, fmt.Errorf("%w: employees cannot reject their own leave", ErrForbidden)
		}
		idx := req.Step(RoleLineManager)
		if req.Status != StatusPending || idx < 0 || req.ApprovalFlow[idx].Status != StatusPending {
			return ledgerDelta{}, invalidState("leave request is not awaiting manager decision")
		}
		s.decide(&req.ApprovalFlow[idx], StatusRejected, approverID, reason)
		req.Status = StatusRejected
		return ledgerDelta{pending: -float64(req.DurationDays)}, nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	sideEffect("rejected_notification", req.ID, func() error {
		return s.Notifier.SendLeaveRejectedNotification(detached(ctx), req, reason)
	})
	return req, nil
}

func (s *Service) HRApprove(ctx context.Context, id, hrID, comment string) (LeaveRequest, error) {
	req, err := s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		if req.Status != StatusPending {
			return ledgerDelta{}, invalidState("leave request is %s", req.Status)
		}
		mgr := req.Step(RoleLineManager)
		if mgr < 0 || req.ApprovalFlow[mgr].Status != StatusApproved {
			return ledgerDelta{}, invalidState("leave request must be approved by manager first")
		}
		hr := req.Step(RoleHRAdmin)
		if hr < 0 {
			req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{Role: RoleHRAdmin, Status: StatusPending})
			hr = len(req.ApprovalFlow) - 1
		}
		if req.ApprovalFlow[hr].Status != StatusPending {
			return ledgerDelta{}, invalidState("hr step already decided")
		}
		s.decide(&req.ApprovalFlow[hr], StatusApproved, hrID, comment)
		req.Status = StatusApproved
		d := float64(req.DurationDays)
		return ledgerDelta{pending: -d, taken: d}, nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	s.afterFinalApproval(ctx, req)
	return req, nil
}

// HRReject closes a request at the hr_admin step.
func (s *Service) HRReject(ctx context.Context, id, hrID, reason string) (LeaveRequest, error) {
	req, err := s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		hr := req.Step(RoleHRAdmin)
		if req.Status != StatusPending || hr < 0 || req.ApprovalFlow[hr].Status != StatusPending {
			return ledgerDelta{}, invalidState("leave request is not awaiting hr decision")
		}
		s.decide(&req.ApprovalFlow[hr], StatusRejected, hrID, reason)
		req.Status = StatusRejected
		return ledgerDelta{pending: -float64(req.DurationDays)}, nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	sideEffect("rejected_notification", req.ID, func() error {
		return s.Notifier.SendLeaveRejectedNotification(detached(ctx), req, reason)
	})
	return req, nil
}

// HROverride approves a pending or rejected request regardless of the
// manager decision. A rejected request already released its pending days,
// so only taken moves in that case.
func (s *Service) HROverride(ctx context.Context, id, hrID, comment string) (LeaveRequest, error) {
	req, err := s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		d := float64(req.DurationDays)
		var delta ledgerDelta
		switch req.Status {
		case StatusPending:
			delta = ledgerDelta{pending: -d, taken: d}
		case StatusRejected:
			delta = ledgerDelta{taken: d}
		default:
			return ledgerDelta{}, invalidState("cannot override a %s request", req.Status)
		}
		for i := range req.ApprovalFlow {
			if req.ApprovalFlow[i].Status != StatusApproved {
				s.decide(&req.ApprovalFlow[i], StatusApproved, hrID, comment)
			}
		}
		if req.Step(RoleHRAdmin) < 0 {
			step := ApprovalStep{Role: RoleHRAdmin}
			s.decide(&step, StatusApproved, hrID, comment)
			req.ApprovalFlow = append(req.ApprovalFlow, step)
		}
		req.Status = StatusApproved
		return delta, nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	s.afterFinalApproval(ctx, req)
	return req, nil
}

func (s *Service) afterFinalApproval(ctx context.Context, req LeaveRequest) {
	ctx = detached(ctx)
	sideEffect("approved_notification", req.ID, func() error {
		return s.Notifier.SendLeaveApprovedNotification(ctx, req)
	})
	sideEffect("time_exception", req.ID, func() error {
		return s.TimeSync.CreateTimeException(ctx, TimeException{
			EmployeeID:     req.EmployeeID,
			LeaveRequestID: req.ID,
			Type:           "LEAVE",
			Status:         StatusApproved,
			Reason:         req.Justification,
			From:           req.From,
			To:             req.To,
		})
	})
	sideEffect("payroll_link", req.ID, func() error {
		lt, err := s.Store.GetLeaveType(ctx, req.LeaveTypeID)
		if err != nil {
			return err
		}
		return s.Payroll.LinkLeave(ctx, req, lt)
	})
}

func (s *Service) Cancel(ctx context.Context, id string, actor core.Actor) (LeaveRequest, error) {
	return s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		if actor.ID != req.EmployeeID {
			return ledgerDelta{}, fmt.Errorf("%w: only the requester can cancel a leave request", ErrForbidden)
		}
		if req.Status != StatusPending {
			return ledgerDelta{}, invalidState("only pending requests can be cancelled, request is %s", req.Status)
		}
		req.Status = StatusCancelled
		return ledgerDelta{pending: -float64(req.DurationDays)}, nil
	})
}

// Delegate routes the next decision to another manager. Status and approval
// flow are left untouched.
func (s *Service) Delegate(ctx context.Context, id, actorID, delegateID string) (LeaveRequest, error) {
	if delegateID == "" {
		return LeaveRequest{}, fmt.Errorf("%w: delegate is required", ErrBadRequest)
	}
	req, err := s.transition(ctx, id, func(req *LeaveRequest) (ledgerDelta, error) {
		if req.Status != StatusPending {
			return ledgerDelta{}, invalidState("only pending requests can be delegated")
		}
		if delegateID == req.EmployeeID {
			return ledgerDelta{}, fmt.Errorf("%w: cannot delegate a request to its requester", ErrBadRequest)
		}
		req.DelegatedBy = delegateID
		return ledgerDelta{}, nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	slog.Info("leave request delegated", "requestId", req.ID, "by", actorID, "to", delegateID)
	sideEffect("delegation_notification", req.ID, func() error {
		return s.Notifier.SendDelegationNotification(detached(ctx), req, delegateID)
	})
	return req, nil
}

// Amend edits a pending request in place. The approval flow restarts at the
// line manager and the replaced state is kept in Amendments.
func (s *Service) Amend(ctx context.Context, id string, actor core.Actor, in AmendInput) (LeaveRequest, error) {
	if !actor.IsEmployee() {
		return LeaveRequest{}, fmt.Errorf("%w: only employees can amend leave requests", ErrForbidden)
	}
	if in.From.IsZero() || in.To.IsZero() {
		return LeaveRequest{}, &RuleError{Rule: RuleDateRange, Message: "from and to dates are required"}
	}
	profile, err := s.profile(ctx, actor.ID)
	if err != nil {
		return LeaveRequest{}, err
	}
	from, to := DateOnly(in.From), DateOnly(in.To)
	duration := 0
	if !to.Before(from) {
		if duration, err = s.Duration(ctx, from, to); err != nil {
			return LeaveRequest{}, err
		}
	}

	var amended LeaveRequest
	err = s.Store.InTx(ctx, func(store StoreAPI) error {
		current, err := store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if current.EmployeeID != actor.ID {
			return fmt.Errorf("%w: only the requester can amend a leave request", ErrForbidden)
		}
		if current.Status != StatusPending {
			return invalidState("only pending requests can be amended, request is %s", current.Status)
		}
		lt, err := store.GetLeaveType(ctx, current.LeaveTypeID)
		if err != nil {
			return err
		}
		attachment := current.AttachmentID
		if in.AttachmentID != nil {
			attachment = *in.AttachmentID
		}
		if err := s.validate(ctx, store, candidate{
			profile:      profile,
			leaveType:    lt,
			from:         from,
			to:           to,
			duration:     duration,
			attachmentID: attachment,
			exclude:      &current,
		}); err != nil {
			return err
		}

		req, delta, err := s.mutateRequest(ctx, store, id, func(req *LeaveRequest) (ledgerDelta, error) {
			if req.Status != StatusPending {
				return ledgerDelta{}, invalidState("only pending requests can be amended, request is %s", req.Status)
			}
			now := s.now()
			req.Amendments = append(req.Amendments, Amendment{
				From:         req.From,
				To:           req.To,
				DurationDays: req.DurationDays,
				ApprovalFlow: append([]ApprovalStep(nil), req.ApprovalFlow...),
				EscalatedAt:  req.EscalatedAt,
				AmendedBy:    actor.ID,
				AmendedAt:    now,
				Reason:       in.Reason,
			})
			delta := ledgerDelta{pending: float64(duration - req.DurationDays)}
			req.From = from
			req.To = to
			req.DurationDays = duration
			if in.Justification != nil {
				req.Justification = *in.Justification
			}
			req.AttachmentID = attachment
			req.ApprovalFlow = []ApprovalStep{{Role: RoleLineManager, Status: StatusPending}}
			req.EscalatedAt = nil
			req.SubmittedAt = now
			return delta, nil
		})
		if err != nil {
			return err
		}
		if !delta.isZero() {
			if _, err := s.mutateEntitlement(ctx, store, byKey(ctx, req.EmployeeID, req.LeaveTypeID), func(e *LeaveEntitlement) error {
				if delta.pending > 0 {
					released := *e
					released.Pending -= float64(req.DurationDays) - delta.pending
					released.Recompute()
					if err := checkBalance(released, req.DurationDays); err != nil {
						return err
					}
				}
				e.Pending += delta.pending
				return nil
			}); err != nil {
				return err
			}
		}
		amended = req
		return nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}

	approverID := s.approverFor(ctx, profile)
	sideEffect("request_notification", amended.ID, func() error {
		return s.Notifier.SendLeaveRequestNotification(detached(ctx), amended, approverID)
	})
	return amended, nil
}

// EscalateOverdue appends an hr_admin step to pending requests whose manager
// has not acted within the SLA. Requests already carrying an hr_admin step
// are left alone, so repeated runs do not duplicate steps.
func (s *Service) EscalateOverdue(ctx context.Context, now time.Time) (EscalationResult, error) {
	result := EscalationResult{RequestIDs: []string{}}
	cutoff := now.Add(-s.Settings.EscalationSLA)
	candidates, err := s.Store.ListRequests(ctx, RequestFilter{
		Statuses:        []string{StatusPending},
		SubmittedBefore: &cutoff,
	})
	if err != nil {
		return result, err
	}
	for _, c := range candidates {
		result.Checked++
		if !needsEscalation(c) {
			continue
		}
		escalated := false
		req, _, err := s.mutateRequest(ctx, s.Store, c.ID, func(req *LeaveRequest) (ledgerDelta, error) {
			if !needsEscalation(*req) {
				return ledgerDelta{}, nil
			}
			at := now.UTC()
			req.EscalatedAt = &at
			req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{Role: RoleHRAdmin, Status: StatusPending})
			escalated = true
			return ledgerDelta{}, nil
		})
		if err != nil {
			result.Failed++
			slog.Warn("leave escalation failed", "requestId", c.ID, "err", err)
			continue
		}
		if !escalated {
			continue
		}
		result.Escalated++
		result.RequestIDs = append(result.RequestIDs, req.ID)
		sideEffect("escalation_notification", req.ID, func() error {
			return s.Notifier.SendEscalationNotification(ctx, req)
		})
	}
	return result, nil
}

func needsEscalation(req LeaveRequest) bool {
	if req.Status != StatusPending || req.EscalatedAt != nil || req.Step(RoleHRAdmin) >= 0 {
		return false
	}
	idx := req.Step(RoleLineManager)
	return idx >= 0 && req.ApprovalFlow[idx].Status == StatusPending
}

func (s *Service) GetRequest(ctx context.Context, id string) (LeaveRequest, error) {
	return s.Store.GetRequest(ctx, id)
}

func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	return s.Store.ListRequests(ctx, filter)
}

// ListPendingForApprover gathers pending requests of the approver's direct
// reports, of reports of managers who delegated to them, and requests routed
// to them through Delegate.
func (s *Service) ListPendingForApprover(ctx context.Context, approverID string) ([]LeaveRequest, error) {
	employees := map[string]bool{}
	if s.Org != nil {
		managers := []string{approverID}
		at := s.now()
		delegations, err := s.Store.ListDelegations(ctx, DelegationFilter{DelegateID: approverID, ActiveAt: &at})
		if err != nil {
			return nil, err
		}
		for _, d := range delegations {
			managers = append(managers, d.ManagerID)
		}
		for _, m := range managers {
			reports, err := s.Org.GetDirectReports(ctx, m)
			if err != nil {
				return nil, err
			}
			for _, id := range reports {
				if id != approverID {
					employees[id] = true
				}
			}
		}
	}

	byID := map[string]LeaveRequest{}
	if len(employees) > 0 {
		ids := make([]string, 0, len(employees))
		for id := range employees {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		reqs, err := s.Store.ListRequests(ctx, RequestFilter{EmployeeIDs: ids, Statuses: []string{StatusPending}})
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			byID[r.ID] = r
		}
	}
	routed, err := s.Store.ListRequests(ctx, RequestFilter{DelegatedBy: approverID, Statuses: []string{StatusPending}})
	if err != nil {
		return nil, err
	}
	for _, r := range routed {
		byID[r.ID] = r
	}

	out := make([]LeaveRequest, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}
