package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
)

func TestSubmitReservesPendingDays(t *testing.T) {
	f := newFixture(t)

	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, 5, req.DurationDays)
	require.Len(t, req.ApprovalFlow, 1)
	assert.Equal(t, leave.RoleLineManager, req.ApprovalFlow[0].Role)
	assert.Equal(t, leave.StatusPending, req.ApprovalFlow[0].Status)

	ent := f.entitlement(employeeID, f.al.ID)
	assert.Equal(t, 5.0, ent.Pending)
	assert.Equal(t, 15.0, ent.Remaining)

	assert.Equal(t, notification{kind: "request", requestID: req.ID, target: managerID}, f.notes.last())
}

func TestSubmitReportsShortfall(t *testing.T) {
	f := newFixture(t)
	f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	// remaining 15 with 5 pending leaves 10 available.
	_, err := f.submit(employeeID, f.al, day(2026, time.March, 16), day(2026, time.March, 30))
	var short *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.ErrorIs(t, err, leave.ErrBadRequest)
	assert.Equal(t, 10.0, short.Available)
	assert.Equal(t, 11.0, short.Requested)
	assert.Equal(t, 1.0, short.Shortfall)
	assert.Equal(t, 5.0, f.entitlement(employeeID, f.al.ID).Pending)

	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 16), day(2026, time.March, 27))
	assert.Equal(t, 10, req.DurationDays)
	assert.Equal(t, 15.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestSubmitRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	first := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	_, err := f.submit(employeeID, f.sl, day(2026, time.March, 12), day(2026, time.March, 17))
	assert.Equal(t, leave.RuleOverlap, ruleOf(err))

	_, err = f.svc.Cancel(f.ctx, first.ID, core.EmployeeActor(employeeID))
	require.NoError(t, err)
	f.mustSubmit(employeeID, f.sl, day(2026, time.March, 12), day(2026, time.March, 17))
}

func TestSubmitRejectsRangesWithoutWorkingDays(t *testing.T) {
	f := newFixture(t)

	_, err := f.submit(employeeID, f.al, day(2026, time.March, 7), day(2026, time.March, 8))
	assert.Equal(t, leave.RuleDateRange, ruleOf(err))

	_, err = f.submit(employeeID, f.al, day(2026, time.March, 13), day(2026, time.March, 9))
	assert.Equal(t, leave.RuleDateRange, ruleOf(err))

	_, err = f.svc.Submit(f.ctx, core.EmployeeActor(employeeID), leave.SubmitInput{LeaveTypeID: f.al.ID})
	assert.Equal(t, leave.RuleDateRange, ruleOf(err))

	assert.Equal(t, 0.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestSubmitExcludesHolidays(t *testing.T) {
	f := newFixture(t)
	results, err := f.svc.AddHolidays(f.ctx, 2026, []leave.Holiday{
		{Date: day(2026, time.March, 10), Name: "Founders Day"},
		{Date: day(2026, time.March, 10), Name: "Duplicate"},
		{Date: day(2027, time.January, 1), Name: "Wrong year"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.False(t, results[2].Success)

	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	assert.Equal(t, 4, req.DurationDays)
	assert.Equal(t, 4.0, f.entitlement(employeeID, f.al.ID).Pending)
}

func TestDurationUsesStartYearCalendar(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SaveCalendar(f.ctx, leave.Calendar{Year: 2027, Holidays: []leave.Holiday{
		{Date: day(2027, time.January, 1), Name: "New Year"},
	}})
	require.NoError(t, err)

	// 28 Dec 2026 to 1 Jan 2027 is Monday to Friday.
	days, err := f.svc.Duration(f.ctx, day(2026, time.December, 28), day(2027, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 5, days)

	_, err = f.svc.AddHolidays(f.ctx, 2026, []leave.Holiday{{Date: day(2026, time.December, 28), Name: "Boxing Day observed"}})
	require.NoError(t, err)
	days, err = f.svc.Duration(f.ctx, day(2026, time.December, 28), day(2027, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 4, days)
}

func TestRemoveHoliday(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddHolidays(f.ctx, 2026, []leave.Holiday{{Date: day(2026, time.March, 10), Name: "Founders Day"}})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveHoliday(f.ctx, 2026, day(2026, time.March, 10)))
	assert.ErrorIs(t, f.svc.RemoveHoliday(f.ctx, 2026, day(2026, time.March, 10)), leave.ErrNotFound)

	days, err := f.svc.Duration(f.ctx, day(2026, time.March, 9), day(2026, time.March, 13))
	require.NoError(t, err)
	assert.Equal(t, 5, days)
}

func TestSubmitHonoursBlockPeriods(t *testing.T) {
	f := newFixture(t)
	block, err := f.svc.CreateBlockPeriod(f.ctx, leave.BlockPeriod{
		Name:             "Quarter close",
		StartDate:        day(2026, time.March, 9),
		EndDate:          day(2026, time.March, 20),
		Reason:           "finance freeze",
		ExemptLeaveTypes: []string{"sl"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SL"}, block.ExemptLeaveTypes)

	_, err = f.submit(employeeID, f.al, day(2026, time.March, 19), day(2026, time.March, 24))
	assert.Equal(t, leave.RuleBlockPeriod, ruleOf(err))
	assert.Contains(t, err.Error(), "finance freeze")

	f.mustSubmit(employeeID, f.sl, day(2026, time.March, 9), day(2026, time.March, 10))

	require.NoError(t, f.svc.DeactivateBlockPeriod(f.ctx, block.ID))
	f.mustSubmit(employeeID, f.al, day(2026, time.March, 19), day(2026, time.March, 24))
}

func TestSubmitEnforcesAnnualCap(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.sl.AnnualCapDays)
	assert.Equal(t, 15, *f.sl.AnnualCapDays)

	f.mustSubmit(employeeID, f.sl, day(2026, time.March, 9), day(2026, time.March, 20))

	_, err := f.submit(employeeID, f.sl, day(2026, time.March, 23), day(2026, time.April, 3))
	assert.Equal(t, leave.RuleAnnualCap, ruleOf(err))

	f.mustSubmit(employeeID, f.sl, day(2026, time.March, 23), day(2026, time.March, 27))
}

func TestSubmitChecksTypeRules(t *testing.T) {
	f := newFixture(t)
	tenure := 120
	maxDays := 3

	medical := f.mustType(leave.LeaveType{Code: "ML", Name: "Medical Leave", Paid: true, Active: true, RequiresAttachment: true, AttachmentKind: "medical certificate"})
	_, err := f.submit(employeeID, medical, day(2026, time.March, 9), day(2026, time.March, 9))
	assert.Equal(t, leave.RuleAttachment, ruleOf(err))
	assert.Contains(t, err.Error(), "medical certificate")

	sabbatical := f.mustType(leave.LeaveType{Code: "SB", Name: "Sabbatical", Paid: true, Active: true, MinTenureMonths: &tenure})
	_, err = f.submit(employeeID, sabbatical, day(2026, time.March, 9), day(2026, time.March, 9))
	assert.Equal(t, leave.RuleTenure, ruleOf(err))

	short := f.mustType(leave.LeaveType{Code: "CL", Name: "Compassionate Leave", Paid: true, Active: true, MaxDurationDays: &maxDays})
	_, err = f.submit(employeeID, short, day(2026, time.March, 9), day(2026, time.March, 12))
	assert.Equal(t, leave.RuleMaxDuration, ruleOf(err))

	inactive := f.mustType(leave.LeaveType{Code: "OL", Name: "Old Leave", Paid: true})
	_, err = f.submit(employeeID, inactive, day(2026, time.March, 9), day(2026, time.March, 9))
	assert.Equal(t, leave.RuleLeaveType, ruleOf(err))

	study := f.mustType(leave.LeaveType{Code: "ST", Name: "Study Leave", Paid: true, Active: true})
	f.mustPolicy(leave.LeavePolicy{LeaveTypeID: study.ID, AccrualMethod: leave.AccrualYearly, YearlyRate: 5, AllowedContractTypes: []string{"CONTRACTOR"}, Active: true})
	_, err = f.submit(employeeID, study, day(2026, time.March, 9), day(2026, time.March, 9))
	assert.Equal(t, leave.RulePolicy, ruleOf(err))
}

func TestSubmitWithoutEntitlementIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.submit(teammateID, f.sl, day(2026, time.March, 9), day(2026, time.March, 9))
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestSubmitRequiresEmployeeActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(f.ctx, core.CandidateActor("cand-1"), leave.SubmitInput{
		LeaveTypeID: f.al.ID,
		From:        day(2026, time.March, 9),
		To:          day(2026, time.March, 9),
	})
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestTeamConflict(t *testing.T) {
	f := newFixture(t)
	mate := f.mustSubmit(teammateID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))

	tc, err := f.svc.CheckTeamConflict(f.ctx, employeeID, day(2026, time.March, 11), day(2026, time.March, 12))
	require.NoError(t, err)
	assert.False(t, tc.Conflict, "pending leave does not count")

	f.approve(mate.ID)

	tc, err = f.svc.CheckTeamConflict(f.ctx, employeeID, day(2026, time.March, 11), day(2026, time.March, 12))
	require.NoError(t, err)
	assert.True(t, tc.Conflict)
	assert.Equal(t, 2, tc.TeamSize)
	assert.Equal(t, 1, tc.OnLeave)
	assert.Equal(t, []string{teammateID}, tc.EmployeeIDs)

	_, err = f.svc.Submit(f.ctx, core.EmployeeActor(employeeID), leave.SubmitInput{
		LeaveTypeID:         f.al.ID,
		From:                day(2026, time.March, 11),
		To:                  day(2026, time.March, 12),
		EnforceTeamConflict: true,
	})
	assert.Equal(t, leave.RuleTeam, ruleOf(err))

	f.mustSubmit(employeeID, f.al, day(2026, time.March, 11), day(2026, time.March, 12))
}

func TestSubmitErrorsAreRuleErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.submit(employeeID, f.al, day(2026, time.March, 7), day(2026, time.March, 7))
	var re *leave.RuleError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, leave.ErrBadRequest)
}

// contendedStore lets another writer reserve days on an entitlement between
// a caller's read and its first conditional write.
type contendedStore struct {
	leave.StoreAPI
	reserve float64
	raced   bool
}

func (s *contendedStore) InTx(ctx context.Context, fn func(leave.StoreAPI) error) error {
	return s.StoreAPI.InTx(ctx, func(tx leave.StoreAPI) error {
		inner := &contendedStore{StoreAPI: tx, reserve: s.reserve, raced: s.raced}
		err := fn(inner)
		s.raced = inner.raced
		return err
	})
}

func (s *contendedStore) UpdateEntitlement(ctx context.Context, e *leave.LeaveEntitlement) error {
	if s.raced {
		return s.StoreAPI.UpdateEntitlement(ctx, e)
	}
	s.raced = true
	other, err := s.StoreAPI.GetEntitlement(ctx, e.ID)
	if err != nil {
		return err
	}
	other.Pending += s.reserve
	other.Recompute()
	if err := s.StoreAPI.UpdateEntitlement(ctx, &other); err != nil {
		return err
	}
	return leave.ErrConcurrentModification
}

func TestSubmitRechecksBalanceOnRetry(t *testing.T) {
	f := newFixture(t)
	f.svc.Store = &contendedStore{StoreAPI: f.store, reserve: 8}

	// 8 days reserved elsewhere leave remaining 12 with 8 pending.
	_, err := f.submit(employeeID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	var short *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 4.0, short.Available)
	assert.Equal(t, 1.0, short.Shortfall)

	reqs, err := f.store.ListRequests(f.ctx, leave.RequestFilter{EmployeeIDs: []string{employeeID}})
	require.NoError(t, err)
	assert.Empty(t, reqs, "request rolled back with the reservation")

	g := newFixture(t)
	g.svc.Store = &contendedStore{StoreAPI: g.store, reserve: 2}
	req := g.mustSubmit(employeeID, g.al, day(2026, time.March, 9), day(2026, time.March, 13))
	assert.Equal(t, 5, req.DurationDays)
	assert.Equal(t, 7.0, g.entitlement(employeeID, g.al.ID).Pending)
}

// flatDirectory serves profiles without a supervisor position, leaving the
// reporting line to the org structure.
type flatDirectory struct{ *core.Memory }

func (d flatDirectory) GetProfile(ctx context.Context, employeeID string) (core.Profile, error) {
	p, err := d.Memory.GetProfile(ctx, employeeID)
	p.SupervisorPositionID = ""
	return p, err
}

func TestSupervisorResolvedFromReportingLine(t *testing.T) {
	f := newFixture(t)
	f.svc.Directory = flatDirectory{f.dir}

	req := f.mustSubmit(employeeID, f.al, day(2026, time.March, 16), day(2026, time.March, 20))
	assert.Equal(t, notification{kind: "request", requestID: req.ID, target: managerID}, f.notes.last())

	mate := f.mustSubmit(teammateID, f.al, day(2026, time.March, 9), day(2026, time.March, 13))
	f.approve(mate.ID)
	tc, err := f.svc.CheckTeamConflict(f.ctx, employeeID, day(2026, time.March, 11), day(2026, time.March, 12))
	require.NoError(t, err)
	assert.True(t, tc.Conflict)
	assert.Equal(t, 2, tc.TeamSize)
}
