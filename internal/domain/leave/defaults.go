package leave

import (
	"context"
	"errors"
	"fmt"
)

// CatalogEntry pairs a leave type with the policy created alongside it.
type CatalogEntry struct {
	Type   LeaveType
	Policy LeavePolicy
}

// DefaultCatalog is the starter set of leave types installed on an empty
// database: annual, sick and unpaid leave.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Type: LeaveType{Code: "AL", Name: "Annual Leave", Paid: true, Deductible: true, Active: true, PayrollCode: "LV-AL"},
			Policy: LeavePolicy{
				AccrualMethod:       AccrualMonthly,
				MonthlyRate:         1.75,
				CarryForwardAllowed: true,
				MaxCarryForward:     5,
				Rounding:            RoundingDown,
				Active:              true,
			},
		},
		{
			Type: LeaveType{Code: "SL", Name: "Sick Leave", Paid: true, Deductible: true, RequiresAttachment: true,
				AttachmentKind: "medical certificate", Active: true, PayrollCode: "LV-SL"},
			Policy: LeavePolicy{AccrualMethod: AccrualYearly, YearlyRate: 15, Rounding: RoundingNone, Active: true},
		},
		{
			Type: LeaveType{Code: "UL", Name: "Unpaid Leave", Paid: false, Deductible: false, Active: true, PayrollCode: "LV-UL"},
			Policy: LeavePolicy{AccrualMethod: AccrualYearly, YearlyRate: 30, Rounding: RoundingNone, Active: true},
		},
	}
}

// EnsureDefaults installs catalog entries whose code does not exist yet and
// returns how many types were created.
func (s *Service) EnsureDefaults(ctx context.Context, catalog []CatalogEntry) (int, error) {
	created := 0
	for _, entry := range catalog {
		_, err := s.Store.GetLeaveTypeByCode(ctx, entry.Type.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		lt, err := s.CreateLeaveType(ctx, entry.Type)
		if err != nil {
			return created, fmt.Errorf("seed leave type %s: %w", entry.Type.Code, err)
		}
		policy := entry.Policy
		policy.LeaveTypeID = lt.ID
		if _, err := s.CreatePolicy(ctx, policy); err != nil {
			return created, fmt.Errorf("seed policy for %s: %w", lt.Code, err)
		}
		created++
	}
	return created, nil
}
