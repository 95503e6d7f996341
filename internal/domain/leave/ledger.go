package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// EntitlementPatch carries the only ledger fields callers may set directly.
type EntitlementPatch struct {
	YearlyEntitlement *float64 `json:"yearlyEntitlement"`
	CarryForward      *float64 `json:"carryForward"`
}

type BulkEntitlementItem struct {
	ID    string           `json:"id"`
	Patch EntitlementPatch `json:"patch"`
}

type ReconcileResult struct {
	Checked   int                `json:"checked"`
	Corrected int                `json:"corrected"`
	Items     []LeaveEntitlement `json:"items"`
}

// mutateEntitlement applies fn to the current row and writes it back
// conditionally on its version, retrying a bounded number of times.
func (s *Service) mutateEntitlement(ctx context.Context, store StoreAPI, load func(StoreAPI) (LeaveEntitlement, error), fn func(*LeaveEntitlement) error) (LeaveEntitlement, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		ent, err := load(store)
		if err != nil {
			return LeaveEntitlement{}, err
		}
		if err := fn(&ent); err != nil {
			return LeaveEntitlement{}, err
		}
		ent.Recompute()
		if err := ent.validate(); err != nil {
			return LeaveEntitlement{}, err
		}
		ent.UpdatedAt = s.now()
		err = store.UpdateEntitlement(ctx, &ent)
		if err == nil {
			return ent, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return LeaveEntitlement{}, err
		}
		lastErr = err
	}
	return LeaveEntitlement{}, lastErr
}

func byID(ctx context.Context, id string) func(StoreAPI) (LeaveEntitlement, error) {
	return func(store StoreAPI) (LeaveEntitlement, error) {
		return store.GetEntitlement(ctx, id)
	}
}

func byKey(ctx context.Context, employeeID, leaveTypeID string) func(StoreAPI) (LeaveEntitlement, error) {
	return func(store StoreAPI) (LeaveEntitlement, error) {
		return store.FindEntitlement(ctx, employeeID, leaveTypeID)
	}
}

func (s *Service) CreateEntitlement(ctx context.Context, ent LeaveEntitlement) (LeaveEntitlement, error) {
	if ent.EmployeeID == "" || ent.LeaveTypeID == "" {
		return LeaveEntitlement{}, fmt.Errorf("%w: employeeId and leaveTypeId are required", ErrBadRequest)
	}
	if _, err := s.Store.GetLeaveType(ctx, ent.LeaveTypeID); err != nil {
		return LeaveEntitlement{}, err
	}
	if ent.YearlyEntitlement < 0 || ent.CarryForward < 0 {
		return LeaveEntitlement{}, &RuleError{Rule: RuleLedger, Message: "entitlement amounts cannot be negative"}
	}
	now := s.now()
	ent.ID = ""
	ent.Taken = 0
	ent.Pending = 0
	ent.AccruedActual = 0
	ent.AccruedRounded = 0
	ent.AnnualGrant = ent.YearlyEntitlement
	ent.Version = 0
	if ent.NextResetDate == nil {
		reset := nextJanFirst(now)
		ent.NextResetDate = &reset
	}
	ent.CreatedAt = now
	ent.UpdatedAt = now
	ent.Recompute()
	return s.Store.CreateEntitlement(ctx, ent)
}

func (s *Service) GetEntitlements(ctx context.Context, employeeID, leaveTypeID string) ([]LeaveEntitlement, error) {
	return s.Store.ListEntitlements(ctx, EntitlementFilter{EmployeeID: employeeID, LeaveTypeID: leaveTypeID})
}

func (s *Service) GetEntitlement(ctx context.Context, id string) (LeaveEntitlement, error) {
	return s.Store.GetEntitlement(ctx, id)
}

func (s *Service) UpdateEntitlement(ctx context.Context, id string, patch EntitlementPatch) (LeaveEntitlement, error) {
	if patch.YearlyEntitlement == nil && patch.CarryForward == nil {
		return LeaveEntitlement{}, fmt.Errorf("%w: nothing to update", ErrBadRequest)
	}
	return s.mutateEntitlement(ctx, s.Store, byID(ctx, id), func(ent *LeaveEntitlement) error {
		if patch.YearlyEntitlement != nil {
			if *patch.YearlyEntitlement < 0 {
				return &RuleError{Rule: RuleLedger, Message: "yearly entitlement cannot be negative"}
			}
			ent.YearlyEntitlement = *patch.YearlyEntitlement
			ent.AnnualGrant = *patch.YearlyEntitlement
		}
		if patch.CarryForward != nil {
			if *patch.CarryForward < 0 {
				return &RuleError{Rule: RuleLedger, Message: "carry forward cannot be negative"}
			}
			ent.CarryForward = *patch.CarryForward
		}
		return nil
	})
}

func (s *Service) DeleteEntitlement(ctx context.Context, id string) error {
	return s.Store.InTx(ctx, func(store StoreAPI) error {
		ent, err := store.GetEntitlement(ctx, id)
		if err != nil {
			return err
		}
		if ent.Taken > 0 {
			return &RuleError{Rule: RuleUsage, Message: fmt.Sprintf("entitlement has %s days taken and cannot be deleted", formatDays(ent.Taken))}
		}
		return store.DeleteEntitlement(ctx, id)
	})
}

// BulkUpdateEntitlements applies each patch independently and reports per item.
func (s *Service) BulkUpdateEntitlements(ctx context.Context, items []BulkEntitlementItem) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for i, item := range items {
		res := ItemResult{Index: i, ID: item.ID}
		if _, err := s.UpdateEntitlement(ctx, item.ID, item.Patch); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results
}

// InitializeForEmployee creates one entitlement per active policy the
// employee is eligible for. Each policy is evaluated independently.
func (s *Service) InitializeForEmployee(ctx context.Context, employeeID, contractType string, tenureMonths int) ([]ItemResult, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employeeId is required", ErrBadRequest)
	}
	policies, err := s.Store.ListPolicies(ctx, true)
	if err != nil {
		return nil, err
	}
	now := s.now()
	results := make([]ItemResult, 0, len(policies))
	for i, policy := range policies {
		res := ItemResult{Index: i}
		lt, err := s.Store.GetLeaveType(ctx, policy.LeaveTypeID)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if reason := initEligibility(lt, policy, contractType, tenureMonths); reason != "" {
			res.Error = reason
			results = append(results, res)
			continue
		}
		ent := LeaveEntitlement{EmployeeID: employeeID, LeaveTypeID: lt.ID}
		if policy.AccrualMethod == AccrualYearly {
			ent.YearlyEntitlement = policy.YearlyRate
			granted := now
			ent.LastAccrualDate = &granted
		}
		created, err := s.CreateEntitlement(ctx, ent)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.ID = created.ID
			res.Success = true
		}
		results = append(results, res)
	}
	return results, nil
}

func initEligibility(lt LeaveType, policy LeavePolicy, contractType string, tenureMonths int) string {
	if !lt.Active {
		return fmt.Sprintf("leave type %s is inactive", lt.Code)
	}
	if len(policy.AllowedContractTypes) > 0 && !contains(policy.AllowedContractTypes, contractType) {
		return fmt.Sprintf("contract type %s is not eligible for %s", contractType, lt.Name)
	}
	minTenure := policy.MinTenureMonths
	if lt.MinTenureMonths != nil && *lt.MinTenureMonths > minTenure {
		minTenure = *lt.MinTenureMonths
	}
	if tenureMonths < minTenure {
		return fmt.Sprintf("%s requires %d months of tenure", lt.Name, minTenure)
	}
	return ""
}

// AdjustBalance records a manual adjustment and moves the yearly entitlement
// by the same amount in one transaction.
func (s *Service) AdjustBalance(ctx context.Context, employeeID, leaveTypeID, adjType string, amount float64, reason, actorID string) (LeaveAdjustment, LeaveEntitlement, error) {
	if adjType != AdjustmentAdd && adjType != AdjustmentDeduct {
		return LeaveAdjustment{}, LeaveEntitlement{}, fmt.Errorf("%w: adjustment type must be ADD or DEDUCT", ErrBadRequest)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return LeaveAdjustment{}, LeaveEntitlement{}, fmt.Errorf("%w: adjustment amount must be positive", ErrBadRequest)
	}
	if reason == "" {
		return LeaveAdjustment{}, LeaveEntitlement{}, fmt.Errorf("%w: adjustment reason is required", ErrBadRequest)
	}
	var adj LeaveAdjustment
	var ent LeaveEntitlement
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		var err error
		ent, err = s.mutateEntitlement(ctx, store, byKey(ctx, employeeID, leaveTypeID), func(e *LeaveEntitlement) error {
			if adjType == AdjustmentAdd {
				e.YearlyEntitlement += amount
			} else {
				e.YearlyEntitlement -= amount
			}
			return nil
		})
		if err != nil {
			return err
		}
		adj, err = store.CreateAdjustment(ctx, LeaveAdjustment{
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			Type:        adjType,
			Amount:      amount,
			Reason:      reason,
			ActorID:     actorID,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return LeaveAdjustment{}, LeaveEntitlement{}, err
	}
	return adj, ent, nil
}

func (s *Service) ListAdjustments(ctx context.Context, employeeID string) ([]LeaveAdjustment, error) {
	return s.Store.ListAdjustments(ctx, employeeID)
}

// ReconcileEntitlements rewrites rows whose stored remaining drifted from
// the canonical formula, for example rows written by the old manual accrual.
func (s *Service) ReconcileEntitlements(ctx context.Context) (ReconcileResult, error) {
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{})
	if err != nil {
		return ReconcileResult{}, err
	}
	result := ReconcileResult{Items: []LeaveEntitlement{}}
	for _, ent := range ents {
		result.Checked++
		expected := ent
		expected.Recompute()
		if nearlyEqual(expected.Remaining, ent.Remaining) {
			continue
		}
		fixed, err := s.mutateEntitlement(ctx, s.Store, byID(ctx, ent.ID), func(*LeaveEntitlement) error { return nil })
		if err != nil {
			slog.Warn("leave reconcile failed", "entitlementId", ent.ID, "err", err)
			continue
		}
		result.Corrected++
		result.Items = append(result.Items, fixed)
	}
	return result, nil
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func nextJanFirst(t time.Time) time.Time {
	return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
