package leave

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type SettlementItem struct {
	EntitlementID  string          `json:"entitlementId"`
	LeaveTypeID    string          `json:"leaveTypeId"`
	LeaveTypeCode  string          `json:"leaveTypeCode"`
	LeaveTypeName  string          `json:"leaveTypeName"`
	Remaining      float64         `json:"remaining"`
	EncashableDays decimal.Decimal `json:"encashableDays"`
	Amount         decimal.Decimal `json:"amount"`
}

type Settlement struct {
	EmployeeID string           `json:"employeeId"`
	DailyRate  decimal.Decimal  `json:"dailyRate"`
	Total      decimal.Decimal  `json:"total"`
	Items      []SettlementItem `json:"items"`
}

type SettlementResult struct {
	EmployeeID        string             `json:"employeeId"`
	Entitlements      []LeaveEntitlement `json:"entitlements"`
	Adjustments       []LeaveAdjustment  `json:"adjustments"`
	CancelledRequests []string           `json:"cancelledRequests"`
}

// CalculateFinalSettlement prices the encashable balance of every entitlement.
// It never writes.
func (s *Service) CalculateFinalSettlement(ctx context.Context, employeeID string, dailyRate decimal.Decimal) (Settlement, error) {
	if dailyRate.IsNegative() {
		return Settlement{}, fmt.Errorf("%w: daily rate cannot be negative", ErrBadRequest)
	}
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{EmployeeID: employeeID})
	if err != nil {
		return Settlement{}, err
	}
	out := Settlement{EmployeeID: employeeID, DailyRate: dailyRate, Total: decimal.Zero, Items: []SettlementItem{}}
	for _, ent := range ents {
		lt, err := s.Store.GetLeaveType(ctx, ent.LeaveTypeID)
		if err != nil {
			return Settlement{}, err
		}
		item := SettlementItem{
			EntitlementID:  ent.ID,
			LeaveTypeID:    lt.ID,
			LeaveTypeCode:  lt.Code,
			LeaveTypeName:  lt.Name,
			Remaining:      ent.Remaining,
			EncashableDays: decimal.Zero,
			Amount:         decimal.Zero,
		}
		if lt.Paid && lt.Encashable && ent.Remaining > 0 {
			capDays, err := s.encashmentCap(ctx, lt.ID)
			if err != nil {
				return Settlement{}, err
			}
			days := math.Min(ent.Remaining, capDays)
			item.EncashableDays = decimal.NewFromFloat(days)
			item.Amount = dailyRate.Mul(item.EncashableDays).Round(2)
		}
		out.Total = out.Total.Add(item.Amount)
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (s *Service) encashmentCap(ctx context.Context, leaveTypeID string) (float64, error) {
	policy, err := s.Store.ActivePolicyForType(ctx, leaveTypeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if err == nil && policy.EncashmentCapDays > 0 {
		return policy.EncashmentCapDays, nil
	}
	return s.Settings.EncashmentCapDays, nil
}

// ProcessFinalSettlement zeroes remaining, pending and accrued amounts on
// every entitlement of the employee. Taken and carry-forward are kept; the
// residual balance is written off through the yearly entitlement and
// recorded as a DEDUCT adjustment. Pending requests are cancelled in the
// same transaction since their pending days no longer exist on the ledger.
func (s *Service) ProcessFinalSettlement(ctx context.Context, employeeID, actorID string) (SettlementResult, error) {
	result := SettlementResult{
		EmployeeID:        employeeID,
		Entitlements:      []LeaveEntitlement{},
		Adjustments:       []LeaveAdjustment{},
		CancelledRequests: []string{},
	}
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		ents, err := store.ListEntitlements(ctx, EntitlementFilter{EmployeeID: employeeID})
		if err != nil {
			return err
		}
		if len(ents) == 0 {
			return fmt.Errorf("%w: employee has no entitlements", ErrNotFound)
		}
		open, err := store.ListRequests(ctx, RequestFilter{EmployeeIDs: []string{employeeID}, Statuses: []string{StatusPending}})
		if err != nil {
			return err
		}
		for _, r := range open {
			if _, _, err := s.mutateRequest(ctx, store, r.ID, func(req *LeaveRequest) (ledgerDelta, error) {
				if req.Status != StatusPending {
					return ledgerDelta{}, nil
				}
				for i := range req.ApprovalFlow {
					if req.ApprovalFlow[i].Status == StatusPending {
						s.decide(&req.ApprovalFlow[i], StatusCancelled, actorID, "final settlement")
					}
				}
				req.Status = StatusCancelled
				return ledgerDelta{}, nil
			}); err != nil {
				return err
			}
			result.CancelledRequests = append(result.CancelledRequests, r.ID)
		}
		for _, ent := range ents {
			var writeOff float64
			settled, err := s.mutateEntitlement(ctx, store, byID(ctx, ent.ID), func(e *LeaveEntitlement) error {
				before := e.YearlyEntitlement
				e.Pending = 0
				e.AccruedActual = 0
				e.AccruedRounded = 0
				e.YearlyEntitlement = e.Taken - e.CarryForward
				e.AnnualGrant = 0
				writeOff = before - e.YearlyEntitlement
				return nil
			})
			if err != nil {
				return err
			}
			result.Entitlements = append(result.Entitlements, settled)
			if writeOff == 0 {
				continue
			}
			adjType := AdjustmentDeduct
			if writeOff < 0 {
				adjType = AdjustmentAdd
			}
			adj, err := store.CreateAdjustment(ctx, LeaveAdjustment{
				EmployeeID:  employeeID,
				LeaveTypeID: ent.LeaveTypeID,
				Type:        adjType,
				Amount:      math.Abs(writeOff),
				Reason:      "final settlement",
				ActorID:     actorID,
				CreatedAt:   s.now(),
			})
			if err != nil {
				return err
			}
			result.Adjustments = append(result.Adjustments, adj)
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	return result, nil
}
