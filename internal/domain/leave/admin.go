package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *Service) ListLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	return s.Store.ListLeaveTypes(ctx)
}

func (s *Service) GetLeaveType(ctx context.Context, id string) (LeaveType, error) {
	return s.Store.GetLeaveType(ctx, id)
}

// CreateLeaveType fills cap and encashment defaults from the rule table.
func (s *Service) CreateLeaveType(ctx context.Context, lt LeaveType) (LeaveType, error) {
	lt.Code = strings.ToUpper(strings.TrimSpace(lt.Code))
	lt.Name = strings.TrimSpace(lt.Name)
	if lt.Code == "" || lt.Name == "" {
		return LeaveType{}, fmt.Errorf("%w: code and name are required", ErrBadRequest)
	}
	if err := validateTypeLimits(lt); err != nil {
		return LeaveType{}, err
	}
	s.Rules.apply(&lt)
	now := s.now()
	lt.CreatedAt = now
	lt.UpdatedAt = now
	return s.Store.CreateLeaveType(ctx, lt)
}

// UpdateLeaveType replaces the mutable attributes. The code is immutable.
func (s *Service) UpdateLeaveType(ctx context.Context, lt LeaveType) (LeaveType, error) {
	current, err := s.Store.GetLeaveType(ctx, lt.ID)
	if err != nil {
		return LeaveType{}, err
	}
	if lt.Code != "" && !strings.EqualFold(lt.Code, current.Code) {
		return LeaveType{}, fmt.Errorf("%w: leave type code cannot be changed", ErrBadRequest)
	}
	if err := validateTypeLimits(lt); err != nil {
		return LeaveType{}, err
	}
	lt.Code = current.Code
	if strings.TrimSpace(lt.Name) == "" {
		lt.Name = current.Name
	}
	lt.CreatedAt = current.CreatedAt
	lt.UpdatedAt = s.now()
	if err := s.Store.UpdateLeaveType(ctx, lt); err != nil {
		return LeaveType{}, err
	}
	return lt, nil
}

func validateTypeLimits(lt LeaveType) error {
	if lt.MinTenureMonths != nil && *lt.MinTenureMonths < 0 {
		return fmt.Errorf("%w: minTenureMonths cannot be negative", ErrBadRequest)
	}
	if lt.MaxDurationDays != nil && *lt.MaxDurationDays <= 0 {
		return fmt.Errorf("%w: maxDurationDays must be positive", ErrBadRequest)
	}
	if lt.AnnualCapDays != nil && *lt.AnnualCapDays <= 0 {
		return fmt.Errorf("%w: annualCapDays must be positive", ErrBadRequest)
	}
	return nil
}

func (s *Service) ListPolicies(ctx context.Context, activeOnly bool) ([]LeavePolicy, error) {
	return s.Store.ListPolicies(ctx, activeOnly)
}

func (s *Service) CreatePolicy(ctx context.Context, p LeavePolicy) (LeavePolicy, error) {
	if err := validatePolicy(p); err != nil {
		return LeavePolicy{}, err
	}
	if _, err := s.Store.GetLeaveType(ctx, p.LeaveTypeID); err != nil {
		return LeavePolicy{}, err
	}
	if p.Rounding == "" {
		p.Rounding = RoundingNone
	}
	var created LeavePolicy
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		if p.Active {
			if _, err := store.ActivePolicyForType(ctx, p.LeaveTypeID); err == nil {
				return fmt.Errorf("%w: leave type already has an active policy", ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		now := s.now()
		p.CreatedAt = now
		p.UpdatedAt = now
		var err error
		created, err = store.CreatePolicy(ctx, p)
		return err
	})
	return created, err
}

func (s *Service) UpdatePolicy(ctx context.Context, p LeavePolicy) (LeavePolicy, error) {
	if err := validatePolicy(p); err != nil {
		return LeavePolicy{}, err
	}
	if p.Rounding == "" {
		p.Rounding = RoundingNone
	}
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		current, err := store.GetPolicy(ctx, p.ID)
		if err != nil {
			return err
		}
		if p.LeaveTypeID != current.LeaveTypeID {
			return fmt.Errorf("%w: policy leave type cannot be changed", ErrBadRequest)
		}
		if p.Active {
			other, err := store.ActivePolicyForType(ctx, p.LeaveTypeID)
			if err == nil && other.ID != p.ID {
				return fmt.Errorf("%w: leave type already has an active policy", ErrConflict)
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		p.CreatedAt = current.CreatedAt
		p.UpdatedAt = s.now()
		return store.UpdatePolicy(ctx, p)
	})
	if err != nil {
		return LeavePolicy{}, err
	}
	return p, nil
}

func validatePolicy(p LeavePolicy) error {
	if p.LeaveTypeID == "" {
		return fmt.Errorf("%w: leaveTypeId is required", ErrBadRequest)
	}
	switch p.AccrualMethod {
	case AccrualMonthly, AccrualYearly:
	default:
		return fmt.Errorf("%w: accrual method must be MONTHLY or YEARLY", ErrBadRequest)
	}
	switch p.Rounding {
	case "", RoundingNone, RoundingUp, RoundingDown:
	default:
		return fmt.Errorf("%w: rounding must be NONE, ROUND_UP or ROUND_DOWN", ErrBadRequest)
	}
	if p.MonthlyRate < 0 || p.YearlyRate < 0 || p.MaxCarryForward < 0 || p.EncashmentCapDays < 0 || p.MinTenureMonths < 0 {
		return fmt.Errorf("%w: policy amounts cannot be negative", ErrBadRequest)
	}
	return nil
}

func (s *Service) ListBlockPeriods(ctx context.Context, activeOnly bool) ([]BlockPeriod, error) {
	return s.Store.ListBlockPeriods(ctx, activeOnly)
}

func (s *Service) CreateBlockPeriod(ctx context.Context, b BlockPeriod) (BlockPeriod, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return BlockPeriod{}, fmt.Errorf("%w: block period name is required", ErrBadRequest)
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() || b.EndDate.Before(b.StartDate) {
		return BlockPeriod{}, &RuleError{Rule: RuleDateRange, Message: "block period end date is before its start date"}
	}
	b.StartDate = DateOnly(b.StartDate)
	b.EndDate = DateOnly(b.EndDate)
	for i, code := range b.ExemptLeaveTypes {
		b.ExemptLeaveTypes[i] = strings.ToUpper(strings.TrimSpace(code))
	}
	if b.ExemptLeaveTypes == nil {
		b.ExemptLeaveTypes = []string{}
	}
	b.Active = true
	b.CreatedAt = s.now()
	return s.Store.CreateBlockPeriod(ctx, b)
}

func (s *Service) DeactivateBlockPeriod(ctx context.Context, id string) error {
	return s.Store.DeactivateBlockPeriod(ctx, id)
}

// CreateDelegation records that delegateID may act for managerID during the
// window. Overlapping delegations are allowed.
func (s *Service) CreateDelegation(ctx context.Context, d LeaveDelegation) (LeaveDelegation, error) {
	if d.ManagerID == "" || d.DelegateID == "" {
		return LeaveDelegation{}, fmt.Errorf("%w: managerId and delegateId are required", ErrBadRequest)
	}
	if d.ManagerID == d.DelegateID {
		return LeaveDelegation{}, fmt.Errorf("%w: a manager cannot delegate to themselves", ErrBadRequest)
	}
	if d.StartDate.IsZero() || d.EndDate.IsZero() || d.EndDate.Before(d.StartDate) {
		return LeaveDelegation{}, &RuleError{Rule: RuleDateRange, Message: "delegation end date is before its start date"}
	}
	d.StartDate = DateOnly(d.StartDate)
	d.EndDate = DateOnly(d.EndDate)
	d.Active = true
	d.CreatedAt = s.now()
	return s.Store.CreateDelegation(ctx, d)
}

func (s *Service) ListDelegations(ctx context.Context, managerID string) ([]LeaveDelegation, error) {
	return s.Store.ListDelegations(ctx, DelegationFilter{ManagerID: managerID})
}

func (s *Service) DeactivateDelegation(ctx context.Context, id string) error {
	return s.Store.DeactivateDelegation(ctx, id)
}

func (s *Service) ActiveDelegationsFor(ctx context.Context, delegateID string, at time.Time) ([]LeaveDelegation, error) {
	return s.Store.ListDelegations(ctx, DelegationFilter{DelegateID: delegateID, ActiveAt: &at})
}
