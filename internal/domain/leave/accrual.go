package leave

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

type AccrualSummary struct {
	PoliciesProcessed int `json:"policiesProcessed"`
	PoliciesSkipped   int `json:"policiesSkipped"`
	EmployeesAccrued  int `json:"employeesAccrued"`
	YearlyGrants      int `json:"yearlyGrants"`
	Skipped           int `json:"skipped"`
	Failed            int `json:"failed"`
}

type YearEndSummary struct {
	Checked   int `json:"checked"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func accrualPeriodStart(now time.Time, method string) time.Time {
	switch method {
	case AccrualMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case AccrualYearly:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

func roundAccrual(v float64, rule string) float64 {
	switch rule {
	case RoundingUp:
		return math.Ceil(v)
	case RoundingDown:
		return math.Floor(v)
	default:
		return v
	}
}

// RunMonthlyAccrual processes every active policy once per accrual period.
// MONTHLY policies add their monthly rate to accruedActual; YEARLY policies
// grant yearlyRate as the yearly entitlement once per calendar year.
// Individual failures are logged and counted without aborting the batch.
func (s *Service) RunMonthlyAccrual(ctx context.Context, now time.Time) (AccrualSummary, error) {
	var summary AccrualSummary
	now = now.UTC()

	policies, err := s.Store.ListPolicies(ctx, true)
	if err != nil {
		return summary, err
	}
	types, err := s.leaveTypeIndex(ctx)
	if err != nil {
		return summary, err
	}

	for _, policy := range policies {
		periodStart := accrualPeriodStart(now, policy.AccrualMethod)
		if periodStart.IsZero() {
			continue
		}
		fresh, err := s.Store.RecordAccrualRun(ctx, policy.ID, periodStart)
		if err != nil {
			return summary, err
		}
		if !fresh {
			summary.PoliciesSkipped++
			continue
		}

		ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{LeaveTypeID: policy.LeaveTypeID})
		if err != nil {
			return summary, err
		}
		for _, ent := range ents {
			if ent.LastAccrualDate != nil && !ent.LastAccrualDate.Before(periodStart) {
				summary.Skipped++
				continue
			}
			eligible, err := s.accrualEligible(ctx, ent.EmployeeID, now, types)
			if err != nil {
				summary.Failed++
				slog.Warn("leave accrual eligibility failed", "employeeId", ent.EmployeeID, "policyId", policy.ID, "err", err)
				continue
			}
			if !eligible {
				summary.Skipped++
				continue
			}
			p := policy
			_, err = s.mutateEntitlement(ctx, s.Store, byID(ctx, ent.ID), func(e *LeaveEntitlement) error {
				if e.LastAccrualDate != nil && !e.LastAccrualDate.Before(periodStart) {
					return errAlreadyAccrued
				}
				applyPeriodAccrual(e, p, now)
				return nil
			})
			switch {
			case errors.Is(err, errAlreadyAccrued):
				summary.Skipped++
			case err != nil:
				summary.Failed++
				slog.Warn("leave accrual failed", "entitlementId", ent.ID, "policyId", policy.ID, "err", err)
			case policy.AccrualMethod == AccrualYearly:
				summary.YearlyGrants++
			default:
				summary.EmployeesAccrued++
			}
		}
		summary.PoliciesProcessed++
	}
	return summary, nil
}

var errAlreadyAccrued = errors.New("already accrued for period")

func applyPeriodAccrual(e *LeaveEntitlement, p LeavePolicy, now time.Time) {
	switch p.AccrualMethod {
	case AccrualYearly:
		e.YearlyEntitlement = p.YearlyRate
		e.AnnualGrant = p.YearlyRate
	default:
		// First accrual after a year-end reset restores the granted base.
		if e.YearlyEntitlement == 0 && e.AnnualGrant > 0 &&
			(e.LastAccrualDate == nil || e.LastAccrualDate.Year() < now.Year()) {
			e.YearlyEntitlement = e.AnnualGrant
		}
		e.AccruedActual += p.MonthlyRate
		e.AccruedRounded = roundAccrual(e.AccruedActual, p.Rounding)
	}
	stamp := now
	e.LastAccrualDate = &stamp
}

// accrualEligible skips suspended or terminated employees and employees on
// approved unpaid leave covering now.
func (s *Service) accrualEligible(ctx context.Context, employeeID string, now time.Time, types map[string]LeaveType) (bool, error) {
	profile, err := s.profile(ctx, employeeID)
	if err != nil {
		return false, err
	}
	if profile.Status == EmployeeSuspended || profile.Status == EmployeeTerminated {
		return false, nil
	}
	today := DateOnly(now)
	active, err := s.Store.ListRequests(ctx, RequestFilter{
		EmployeeIDs: []string{employeeID},
		Statuses:    []string{StatusApproved},
		OverlapFrom: &today,
		OverlapTo:   &today,
	})
	if err != nil {
		return false, err
	}
	for _, r := range active {
		if lt, ok := types[r.LeaveTypeID]; ok && lt.Unpaid() {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) leaveTypeIndex(ctx context.Context) (map[string]LeaveType, error) {
	types, err := s.Store.ListLeaveTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]LeaveType, len(types))
	for _, lt := range types {
		out[lt.ID] = lt
	}
	return out, nil
}

// ProcessLeaveAccrual applies one accrual period to a single entitlement on
// demand, with the same effect as the batch run: MONTHLY policies add the
// monthly rate, YEARLY policies set the yearly grant rather than adding to it.
func (s *Service) ProcessLeaveAccrual(ctx context.Context, employeeID, leaveTypeID string, now time.Time) (LeaveEntitlement, error) {
	policy, err := s.Store.ActivePolicyForType(ctx, leaveTypeID)
	if err != nil {
		return LeaveEntitlement{}, err
	}
	return s.mutateEntitlement(ctx, s.Store, byKey(ctx, employeeID, leaveTypeID), func(e *LeaveEntitlement) error {
		applyPeriodAccrual(e, policy, now.UTC())
		return nil
	})
}

// ProcessYearEnd rolls the unused balance into carry-forward, capped by the
// policy, and resets the year's counters. It reports false when the policy
// does not allow carry-forward.
func (s *Service) ProcessYearEnd(ctx context.Context, employeeID, leaveTypeID string, now time.Time) (LeaveEntitlement, bool, error) {
	policy, err := s.Store.ActivePolicyForType(ctx, leaveTypeID)
	if errors.Is(err, ErrNotFound) {
		ent, err := s.Store.FindEntitlement(ctx, employeeID, leaveTypeID)
		return ent, false, err
	}
	if err != nil {
		return LeaveEntitlement{}, false, err
	}
	if !policy.CarryForwardAllowed {
		ent, err := s.Store.FindEntitlement(ctx, employeeID, leaveTypeID)
		return ent, false, err
	}
	ent, err := s.mutateEntitlement(ctx, s.Store, byKey(ctx, employeeID, leaveTypeID), func(e *LeaveEntitlement) error {
		applyYearEnd(e, policy, now)
		return nil
	})
	if err != nil {
		return LeaveEntitlement{}, false, err
	}
	return ent, true, nil
}

func applyYearEnd(e *LeaveEntitlement, policy LeavePolicy, now time.Time) {
	e.Recompute()
	carry := e.Remaining
	if policy.MaxCarryForward > 0 && carry > policy.MaxCarryForward {
		carry = policy.MaxCarryForward
	}
	if carry < 0 {
		carry = 0
	}
	e.CarryForward = carry
	e.YearlyEntitlement = 0
	e.AccruedActual = 0
	e.AccruedRounded = 0
	e.Taken = 0
	e.Pending = 0
	reset := nextJanFirst(now.UTC())
	e.NextResetDate = &reset
}

// RunYearEnd processes every entitlement whose reset date has passed.
func (s *Service) RunYearEnd(ctx context.Context, now time.Time) (YearEndSummary, error) {
	var summary YearEndSummary
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{})
	if err != nil {
		return summary, err
	}
	for _, ent := range ents {
		summary.Checked++
		if ent.NextResetDate != nil && ent.NextResetDate.After(now) {
			summary.Skipped++
			continue
		}
		_, applied, err := s.ProcessYearEnd(ctx, ent.EmployeeID, ent.LeaveTypeID, now)
		if err != nil {
			summary.Failed++
			slog.Warn("leave year end failed", "entitlementId", ent.ID, "err", err)
			continue
		}
		if applied {
			summary.Processed++
		} else {
			summary.Skipped++
		}
	}
	return summary, nil
}
