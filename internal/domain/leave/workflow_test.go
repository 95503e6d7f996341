package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
)

func TestApprovalMovesPendingToTaken(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	approved, err := f.svc.ManagerApprove(f.ctx, req.ID, managerID, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, approved.Status)
	require.Len(t, approved.ApprovalFlow, 2)
	assert.Equal(t, leave.StatusApproved, approved.ApprovalFlow[0].Status)
	assert.Equal(t, managerID, approved.ApprovalFlow[0].DecidedBy)
	require.NotNil(t, approved.ApprovalFlow[0].DecidedAt)
	assert.Equal(t, leave.RoleHRAdmin, approved.ApprovalFlow[1].Role)
	assert.Equal(t, leave.StatusPending, approved.ApprovalFlow[1].Status)
	assert.Equal(t, 5.0, f.entitlement(employeeID, f.al.ID).Pending, "manager approval leaves the ledger alone")

	_, err = f.svc.ManagerApprove(f.ctx, req.ID, managerID, "again")
	assert.ErrorIs(t, err, leave.ErrInvalidState)

	final, err := f.svc.HRApprove(f.ctx, req.ID, hrID, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, final.Status)

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 0.0, ent.Pending)
	assert.Equal(t, 5.0, ent.Taken)
	assert.Equal(t, 15.0, ent.Remaining)
	assert.Equal(t, []string{"request", "approved"}, f.notes.kinds(req.ID))

	_, err = f.svc.HRApprove(f.ctx, req.ID, hrID, "")
	assert.ErrorIs(t, err, leave.ErrInvalidState)
	assert.Equal(t, 5.0, f.entitlement(employeeID, f.al.ID).Taken)
}

func TestHRApproveRequiresManagerApproval(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	_, err := f.svc.HRApprove(f.ctx, req.ID, hrID, "")
	assert.ErrorIs(t, err, leave.ErrInvalidState)
	assert.Contains(t, err.Error(), "approved by manager first")

	got, err := f.svc.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Len(t, got.ApprovalFlow, 1)
}

func TestApproverCannotDecideOwnRequest(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 9))

	_, err := f.svc.ManagerApprove(f.ctx, req.ID, employeeID, "")
	assert.ErrorIs(t, err, leave.ErrForbidden)
	_, err = f.svc.ManagerReject(f.ctx, req.ID, employeeID, "no")
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestManagerRejectReleasesPending(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	rejected, err := f.svc.ManagerReject(f.ctx, req.ID, managerID, "release crunch")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, leave.StatusRejected, rejected.ApprovalFlow[0].Status)
	assert.Equal(t, "release crunch", rejected.ApprovalFlow[0].Comment)

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 0.0, ent.Pending)
	assert.Equal(t, 20.0, ent.Remaining)
	assert.Equal(t, notification{kind: "rejected", requestID: req.ID, target: "release crunch"}, f.notes.last())

	_, err = f.svc.ManagerReject(f.ctx, req.ID, managerID, "again")
	assert.ErrorIs(t, err, leave.ErrInvalidState)
	assert.Equal(t, 0.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestHRRejectAfterManagerApproval(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	_, err := f.svc.HRReject(f.ctx, req.ID, hrID, "too early")
	assert.ErrorIs(t, err, leave.ErrInvalidState)

	_, err = f.svc.ManagerApprove(f.ctx, req.ID, managerID, "")
	require.NoError(t, err)
	_, err = f.svc.ManagerReject(f.ctx, req.ID, managerID, "changed my mind")
	assert.ErrorIs(t, err, leave.ErrInvalidState, "the hr stage owns the decision now")
	assert.Equal(t, 5.0, f.entitlement(employeeID, f.al.ID).Pending)

	rejected, err := f.svc.HRReject(f.ctx, req.ID, hrID, "staffing")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, leave.StatusRejected, rejected.ApprovalFlow[1].Status)
	assert.Equal(t, 0.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestHROverrideApprovesRejectedRequest(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	_, err := f.svc.ManagerReject(f.ctx, req.ID, managerID, "no")
	require.NoError(t, err)

	overridden, err := f.svc.HROverride(f.ctx, req.ID, hrID, "approved on appeal")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, overridden.Status)
	require.Len(t, overridden.ApprovalFlow, 2)
	for _, step := range overridden.ApprovalFlow {
		assert.Equal(t, leave.StatusApproved, step.Status)
		assert.Equal(t, hrID, step.DecidedBy)
	}

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 0.0, ent.Pending)
	assert.Equal(t, 5.0, ent.Taken)

	_, err = f.svc.HROverride(f.ctx, req.ID, hrID, "twice")
	assert.ErrorIs(t, err, leave.ErrInvalidState)
	assert.Equal(t, 5.0, f.entitlement(employeeID, f.al.ID).Taken)
}

func TestHROverridePendingRequest(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 10))

	_, err := f.svc.HROverride(f.ctx, req.ID, hrID, "urgent")
	require.NoError(t, err)

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 0.0, ent.Pending)
	assert.Equal(t, 2.0, ent.Taken)
}

func TestCancelOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	pending := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	_, err := f.svc.Cancel(f.ctx, pending.ID, core.EmployeeActor(teammateID))
	assert.ErrorIs(t, err, leave.ErrForbidden)

	cancelled, err := f.svc.Cancel(f.ctx, pending.ID, core.EmployeeActor(employeeID))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.Equal(t, 0.0, f.entitlement(employeeID, f.al.ID).Pending)

	approved := f.mustSubmit(employeeID, f.al, day(2026, time.March, 16), day(2026, time.March, 18))
	f.approve(approved.ID)
	before := f.entitlement(employeeID, f.al.ID)

	_, err = f.svc.Cancel(f.ctx, approved.ID, core.EmployeeActor(employeeID))
	assert.ErrorIs(t, err, leave.ErrInvalidState)

	after := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, before.Taken, after.Taken)
	assert.Equal(t, before.Pending, after.Pending)
	assert.Equal(t, before.Remaining, after.Remaining)
}

func TestEscalateOverdueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	stale := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	f.now = base.Add(47 * time.Hour)
	fresh := f.mustSubmit(teammateID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	f.now = base.Add(49 * time.Hour)
	res, err := f.svc.EscalateOverdue(f.ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)
	assert.Equal(t, []string{stale.ID}, res.RequestIDs)

	got, err := f.svc.GetRequest(f.ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EscalatedAt)
	require.Len(t, got.ApprovalFlow, 2)
	assert.Equal(t, leave.RoleHRAdmin, got.ApprovalFlow[1].Role)
	assert.Equal(t, leave.StatusPending, got.ApprovalFlow[1].Status)
	assert.Contains(t, f.notes.kinds(stale.ID), "escalated")

	untouched, err := f.svc.GetRequest(f.ctx, fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.EscalatedAt)
	assert.Len(t, untouched.ApprovalFlow, 1)

	res, err = f.svc.EscalateOverdue(f.ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Escalated)
	got, err = f.svc.GetRequest(f.ctx, stale.ID)
	require.NoError(t, err)
	assert.Len(t, got.ApprovalFlow, 2)
}

func TestEscalatedRequestCanStillBeDecided(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	f.now = base.Add(72 * time.Hour)
	out, err := leave.EscalationJob{Service: f.svc}.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(leave.EscalationResult).Escalated)

	_, err = f.svc.ManagerApprove(f.ctx, req.ID, managerID, "late but fine")
	require.NoError(t, err)
	final, err := f.svc.HRApprove(f.ctx, req.ID, hrID, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, final.Status)
	assert.Len(t, final.ApprovalFlow, 2, "no duplicate hr step")
}

func TestAmendRestartsApprovalFlow(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	_, err := f.svc.ManagerApprove(f.ctx, req.ID, managerID, "")
	require.NoError(t, err)

	_, err = f.svc.Amend(f.ctx, req.ID, core.EmployeeActor(teammateID), leave.AmendInput{From: day(2026, time.March, 9), To: day(2026, time.March, 11)})
	assert.ErrorIs(t, err, leave.ErrForbidden)

	note := "shorter trip"
	f.now = base.Add(time.Hour)
	amended, err := f.svc.Amend(f.ctx, req.ID, core.EmployeeActor(employeeID), leave.AmendInput{
		From:          day(2026, time.March, 9),
		To:            day(2026, time.March, 11),
		Justification: &note,
		Reason:        "plans changed",
	})
	require.NoError(t, err)
	assert.Equal(t, req.ID, amended.ID)
	assert.Equal(t, leave.StatusPending, amended.Status)
	assert.Equal(t, 3, amended.DurationDays)
	assert.Equal(t, note, amended.Justification)
	require.Len(t, amended.ApprovalFlow, 1)
	assert.Equal(t, leave.StatusPending, amended.ApprovalFlow[0].Status)
	require.Len(t, amended.Amendments, 1)
	assert.Equal(t, 5, amended.Amendments[0].DurationDays)
	assert.Len(t, amended.Amendments[0].ApprovalFlow, 2)
	assert.Equal(t, "plans changed", amended.Amendments[0].Reason)

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 3.0, ent.Pending)
	assert.Equal(t, 17.0, ent.Remaining)
}

func TestAmendChecksBalanceWithoutOwnReservation(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	// Without its own 5 days the request may grow to the full 20.
	_, err := f.svc.Amend(f.ctx, req.ID, core.EmployeeActor(employeeID), leave.AmendInput{From: day(2026, time.March, 9), To: day(2026, time.April, 6)})
	var short *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 1.0, short.Shortfall)

	amended, err := f.svc.Amend(f.ctx, req.ID, core.EmployeeActor(employeeID), leave.AmendInput{From: day(2026, time.March, 9), To: day(2026, time.April, 3)})
	require.NoError(t, err)
	assert.Equal(t, 20, amended.DurationDays)
	assert.Equal(t, 20.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestAmendRejectsDecidedRequest(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	f.approve(req.ID)

	_, err := f.svc.Amend(f.ctx, req.ID, core.EmployeeActor(employeeID), leave.AmendInput{From: day(2026, time.March, 9), To: day(2026, time.March, 10)})
	assert.ErrorIs(t, err, leave.ErrInvalidState)
}

func TestDelegateRoutesPendingListing(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	pending, err := f.svc.ListPendingForApprover(f.ctx, otherMgrID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.Delegate(f.ctx, req.ID, managerID, employeeID)
	assert.ErrorIs(t, err, leave.ErrBadRequest)

	delegated, err := f.svc.Delegate(f.ctx, req.ID, managerID, otherMgrID)
	require.NoError(t, err)
	assert.Equal(t, otherMgrID, delegated.DelegatedBy)
	assert.Equal(t, leave.StatusPending, delegated.Status)
	assert.Len(t, delegated.ApprovalFlow, 1)
	assert.Equal(t, notification{kind: "delegated", requestID: req.ID, target: otherMgrID}, f.notes.last())

	pending, err = f.svc.ListPendingForApprover(f.ctx, otherMgrID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestDelegationWindowSharesApproverQueue(t *testing.T) {
	f := newFixture(t)
	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	mine, err := f.svc.ListPendingForApprover(f.ctx, managerID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = f.svc.CreateDelegation(f.ctx, leave.LeaveDelegation{ManagerID: managerID, DelegateID: managerID, StartDate: base, EndDate: base})
	assert.ErrorIs(t, err, leave.ErrBadRequest)

	d, err := f.svc.CreateDelegation(f.ctx, leave.LeaveDelegation{
		ManagerID:  managerID,
		DelegateID: otherMgrID,
		StartDate:  base,
		EndDate:    base.AddDate(0, 0, 7),
		Reason:     "conference",
	})
	require.NoError(t, err)

	active, err := f.svc.ActiveDelegationsFor(f.ctx, otherMgrID, base)
	require.NoError(t, err)
	require.Len(t, active, 1)

	pending, err := f.svc.ListPendingForApprover(f.ctx, otherMgrID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	f.now = base.AddDate(0, 0, 10)
	pending, err = f.svc.ListPendingForApprover(f.ctx, otherMgrID)
	require.NoError(t, err)
	assert.Empty(t, pending, "delegation window has ended")

	f.now = base
	require.NoError(t, f.svc.DeactivateDelegation(f.ctx, d.ID))
	pending, err = f.svc.ListPendingForApprover(f.ctx, otherMgrID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
