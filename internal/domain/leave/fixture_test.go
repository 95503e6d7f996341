package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
	"hrleave/internal/domain/leave/memstore"
)

const (
	employeeID = "emp-1"
	teammateID = "emp-2"
	managerID  = "mgr-1"
	otherMgrID = "mgr-2"
	hrID       = "hr-1"
)

// Monday 2 March 2026.
var base = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	store *memstore.Store
	dir   *core.Memory
	notes *recordingNotifier
	svc   *leave.Service
	al    leave.LeaveType
	sl    leave.LeaveType
}

// newFixture builds a team of two engineers reporting to mgr-1, a second
// manager and an HR admin. emp-1 holds 20 AL and 30 SL days, emp-2 20 AL days.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		now:   base,
		store: memstore.New(),
		dir:   core.NewMemory(),
		notes: &recordingNotifier{},
	}

	f.dir.PutPosition(core.Position{ID: "pos-mgr", Title: "Engineering Manager"})
	f.dir.PutPosition(core.Position{ID: "pos-mgr-2", Title: "Platform Manager"})
	f.dir.PutPosition(core.Position{ID: "pos-dev", Title: "Engineer", SupervisorPositionID: "pos-mgr"})
	f.dir.PutPosition(core.Position{ID: "pos-dev-2", Title: "Engineer", SupervisorPositionID: "pos-mgr"})
	f.dir.PutPosition(core.Position{ID: "pos-hr", Title: "HR Manager"})

	hired := day(2020, time.January, 15)
	f.putEmployee(employeeID, "pos-dev", hired)
	f.putEmployee(teammateID, "pos-dev-2", hired)
	f.putEmployee(managerID, "pos-mgr", hired)
	f.putEmployee(otherMgrID, "pos-mgr-2", hired)
	f.putEmployee(hrID, "pos-hr", hired)

	f.svc = leave.NewService(f.store, leave.Dependencies{
		Directory: f.dir,
		Org:       f.dir,
		Notifier:  f.notes,
		Now:       func() time.Time { return f.now },
	}, leave.Settings{})

	f.al = f.mustType(leave.LeaveType{Code: "AL", Name: "Annual Leave", Paid: true, Deductible: true, Active: true})
	f.mustPolicy(leave.LeavePolicy{
		LeaveTypeID:         f.al.ID,
		AccrualMethod:       leave.AccrualMonthly,
		MonthlyRate:         1.75,
		CarryForwardAllowed: true,
		MaxCarryForward:     45,
		Rounding:            leave.RoundingDown,
		Active:              true,
	})
	f.sl = f.mustType(leave.LeaveType{Code: "SL", Name: "Sick Leave", Paid: true, Deductible: true, Active: true})
	f.mustPolicy(leave.LeavePolicy{LeaveTypeID: f.sl.ID, AccrualMethod: leave.AccrualYearly, YearlyRate: 30, Active: true})

	f.grant(employeeID, f.al.ID, 20)
	f.grant(employeeID, f.sl.ID, 30)
	f.grant(teammateID, f.al.ID, 20)
	return f
}

func (f *fixture) putEmployee(id, positionID string, hired time.Time) {
	f.dir.PutProfile(core.Profile{
		EmployeeID:        id,
		FullName:          id,
		HireDate:          hired,
		Status:            leave.EmployeeActive,
		ContractType:      "PERMANENT",
		PrimaryPositionID: positionID,
		WorkEmail:         id + "@example.com",
	})
}

func (f *fixture) mustType(lt leave.LeaveType) leave.LeaveType {
	f.t.Helper()
	created, err := f.svc.CreateLeaveType(f.ctx, lt)
	require.NoError(f.t, err)
	return created
}

func (f *fixture) mustPolicy(p leave.LeavePolicy) leave.LeavePolicy {
	f.t.Helper()
	created, err := f.svc.CreatePolicy(f.ctx, p)
	require.NoError(f.t, err)
	return created
}

func (f *fixture) grant(employee, leaveTypeID string, yearly float64) leave.LeaveEntitlement {
	f.t.Helper()
	ent, err := f.svc.CreateEntitlement(f.ctx, leave.LeaveEntitlement{EmployeeID: employee, LeaveTypeID: leaveTypeID, YearlyEntitlement: yearly})
	require.NoError(f.t, err)
	return ent
}

func (f *fixture) submit(employee string, lt leave.LeaveType, from, to time.Time) (leave.LeaveRequest, error) {
	return f.svc.Submit(f.ctx, core.EmployeeActor(employee), leave.SubmitInput{LeaveTypeID: lt.ID, From: from, To: to})
}

func (f *fixture) mustSubmit(employee string, lt leave.LeaveType, from, to time.Time) leave.LeaveRequest {
	f.t.Helper()
	req, err := f.submit(employee, lt, from, to)
	require.NoError(f.t, err)
	return req
}

// approve runs the request through both approval steps.
func (f *fixture) approve(id string) leave.LeaveRequest {
	f.t.Helper()
	_, err := f.svc.ManagerApprove(f.ctx, id, managerID, "ok")
	require.NoError(f.t, err)
	req, err := f.svc.HRApprove(f.ctx, id, hrID, "ok")
	require.NoError(f.t, err)
	return req
}

func (f *fixture) entitlement(employee, leaveTypeID string) leave.LeaveEntitlement {
	f.t.Helper()
	ents, err := f.svc.GetEntitlements(f.ctx, employee, leaveTypeID)
	require.NoError(f.t, err)
	require.Len(f.t, ents, 1)
	assertLedger(f.t, ents[0])
	return ents[0]
}

func assertLedger(t *testing.T, e leave.LeaveEntitlement) {
	t.Helper()
	assert.InDelta(t, e.YearlyEntitlement+e.CarryForward+e.AccruedRounded-e.Taken-e.Pending, e.Remaining, 1e-9, "ledger formula")
	assert.GreaterOrEqual(t, e.Pending, 0.0)
	assert.GreaterOrEqual(t, e.Taken, 0.0)
}

func ruleOf(err error) string {
	var re *leave.RuleError
	if errors.As(err, &re) {
		return re.Rule
	}
	return ""
}

type notification struct {
	kind      string
	requestID string
	target    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) record(kind, requestID, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: kind, requestID: requestID, target: target})
	return nil
}

func (n *recordingNotifier) kinds(requestID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.requestID == requestID {
			out = append(out, e.kind)
		}
	}
	return out
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return notification{}
	}
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) SendLeaveRequestNotification(_ context.Context, req leave.LeaveRequest, approverID string) error {
	return n.record("request", req.ID, approverID)
}

func (n *recordingNotifier) SendLeaveApprovedNotification(_ context.Context, req leave.LeaveRequest) error {
	return n.record("approved", req.ID, req.EmployeeID)
}

func (n *recordingNotifier) SendLeaveRejectedNotification(_ context.Context, req leave.LeaveRequest, reason string) error {
	return n.record("rejected", req.ID, reason)
}

func (n *recordingNotifier) SendEscalationNotification(_ context.Context, req leave.LeaveRequest) error {
	return n.record("escalated", req.ID, "")
}

func (n *recordingNotifier) SendDelegationNotification(_ context.Context, req leave.LeaveRequest, delegateID string) error {
	return n.record("delegated", req.ID, delegateID)
}
