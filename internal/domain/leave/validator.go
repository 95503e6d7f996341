package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrleave/internal/domain/core"
)

type TeamConflict struct {
	Conflict    bool     `json:"conflict"`
	TeamSize    int      `json:"teamSize"`
	OnLeave     int      `json:"onLeave"`
	Threshold   float64  `json:"threshold"`
	EmployeeIDs []string `json:"employeeIds"`
}

// candidate describes a request under validation. exclude is set when an
// existing request is being amended so that it does not conflict with itself.
type candidate struct {
	profile      core.Profile
	leaveType    LeaveType
	from         time.Time
	to           time.Time
	duration     int
	attachmentID string
	exclude      *LeaveRequest
}

// validate runs the eligibility rules in order and returns the first violation.
func (s *Service) validate(ctx context.Context, store StoreAPI, c candidate) error {
	lt := c.leaveType
	if c.to.Before(c.from) {
		return &RuleError{Rule: RuleDateRange, Message: "leave end date is before its start date"}
	}
	if c.duration <= 0 {
		return &RuleError{Rule: RuleDateRange, Message: "requested range contains no working days"}
	}

	if !lt.Active {
		return &RuleError{Rule: RuleLeaveType, Message: fmt.Sprintf("leave type %s is not active", lt.Name)}
	}
	if lt.RequiresAttachment && c.attachmentID == "" {
		kind := lt.AttachmentKind
		if kind == "" {
			kind = "supporting document"
		}
		return &RuleError{Rule: RuleAttachment, Message: fmt.Sprintf("%s requires an attachment (%s)", lt.Name, kind)}
	}
	if lt.MaxDurationDays != nil && c.duration > *lt.MaxDurationDays {
		return &RuleError{Rule: RuleMaxDuration, Message: fmt.Sprintf("%s allows at most %d days per request, requested %d", lt.Name, *lt.MaxDurationDays, c.duration)}
	}

	tenure := monthsBetween(c.profile.HireDate, s.now())
	if lt.MinTenureMonths != nil && tenure < *lt.MinTenureMonths {
		return &RuleError{Rule: RuleTenure, Message: fmt.Sprintf("%s requires %d months of tenure, employee has %d", lt.Name, *lt.MinTenureMonths, tenure)}
	}

	policy, err := store.ActivePolicyForType(ctx, lt.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		if len(policy.AllowedContractTypes) > 0 && !contains(policy.AllowedContractTypes, c.profile.ContractType) {
			return &RuleError{Rule: RulePolicy, Message: fmt.Sprintf("contract type %s is not eligible for %s", c.profile.ContractType, lt.Name)}
		}
		if len(policy.AllowedPositions) > 0 && !contains(policy.AllowedPositions, c.profile.PrimaryPositionID) {
			return &RuleError{Rule: RulePolicy, Message: fmt.Sprintf("position is not eligible for %s", lt.Name)}
		}
		if policy.MinTenureMonths > 0 && tenure < policy.MinTenureMonths {
			return &RuleError{Rule: RuleTenure, Message: fmt.Sprintf("%s policy requires %d months of tenure, employee has %d", lt.Name, policy.MinTenureMonths, tenure)}
		}
	}

	blocks, err := store.ListBlockPeriods(ctx, true)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if DateOnly(b.StartDate).After(c.to) || DateOnly(b.EndDate).Before(c.from) {
			continue
		}
		if b.exempts(lt.Code) {
			continue
		}
		msg := fmt.Sprintf("leave is blocked during %q (%s to %s)", b.Name, b.StartDate.Format(isoDate), b.EndDate.Format(isoDate))
		if b.Reason != "" {
			msg += ": " + b.Reason
		}
		return &RuleError{Rule: RuleBlockPeriod, Message: msg}
	}

	excludeID := ""
	if c.exclude != nil {
		excludeID = c.exclude.ID
	}

	if lt.AnnualCapDays != nil {
		yearStart := time.Date(c.from.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		yearEnd := time.Date(c.from.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		existing, err := store.ListRequests(ctx, RequestFilter{
			EmployeeIDs: []string{c.profile.EmployeeID},
			LeaveTypeID: lt.ID,
			Statuses:    []string{StatusPending, StatusApproved},
			OverlapFrom: &yearStart,
			OverlapTo:   &yearEnd,
			ExcludeID:   excludeID,
		})
		if err != nil {
			return err
		}
		used := 0
		for _, r := range existing {
			if r.From.Year() == c.from.Year() {
				used += r.DurationDays
			}
		}
		if used+c.duration > *lt.AnnualCapDays {
			return &RuleError{Rule: RuleAnnualCap, Message: fmt.Sprintf("annual cap of %d days for %s exceeded: %d days already requested, %d more requested", *lt.AnnualCapDays, lt.Name, used, c.duration)}
		}
	}

	ent, err := store.FindEntitlement(ctx, c.profile.EmployeeID, lt.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: no entitlement for %s", ErrNotFound, lt.Name)
		}
		return err
	}
	if c.exclude != nil && c.exclude.Status == StatusPending {
		ent.Pending -= float64(c.exclude.DurationDays)
		ent.Recompute()
	}
	if err := checkBalance(ent, c.duration); err != nil {
		return err
	}

	overlapping, err := store.ListRequests(ctx, RequestFilter{
		EmployeeIDs: []string{c.profile.EmployeeID},
		Statuses:    []string{StatusPending, StatusApproved},
		OverlapFrom: &c.from,
		OverlapTo:   &c.to,
		ExcludeID:   excludeID,
	})
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		o := overlapping[0]
		return &RuleError{Rule: RuleOverlap, Message: fmt.Sprintf("overlaps with %s request from %s to %s", o.Status, o.From.Format(isoDate), o.To.Format(isoDate))}
	}
	return nil
}

// CheckTeamConflict counts teammates under the same supervisor with approved
// leave overlapping the range. It is advisory unless enforced at submission.
func (s *Service) CheckTeamConflict(ctx context.Context, employeeID string, from, to time.Time) (TeamConflict, error) {
	return s.teamConflict(ctx, s.Store, employeeID, from, to)
}

func (s *Service) teamConflict(ctx context.Context, store StoreAPI, employeeID string, from, to time.Time) (TeamConflict, error) {
	result := TeamConflict{Threshold: s.Settings.TeamConflictThreshold, EmployeeIDs: []string{}}
	if s.Directory == nil || s.Org == nil {
		return result, nil
	}
	profile, err := s.Directory.GetProfile(ctx, employeeID)
	if err != nil {
		return result, err
	}
	positionID, err := s.supervisorPosition(ctx, profile)
	if err != nil || positionID == "" {
		return result, err
	}
	supervisorID, err := s.Org.GetEmployeeHoldingPosition(ctx, positionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return result, nil
		}
		return result, err
	}
	reports, err := s.Org.GetDirectReports(ctx, supervisorID)
	if err != nil {
		return result, err
	}
	team := map[string]bool{employeeID: true}
	var teammates []string
	for _, id := range reports {
		if team[id] {
			continue
		}
		team[id] = true
		teammates = append(teammates, id)
	}
	result.TeamSize = len(team)
	if len(teammates) == 0 {
		return result, nil
	}

	from, to = DateOnly(from), DateOnly(to)
	approved, err := store.ListRequests(ctx, RequestFilter{
		EmployeeIDs: teammates,
		Statuses:    []string{StatusApproved},
		OverlapFrom: &from,
		OverlapTo:   &to,
	})
	if err != nil {
		return result, err
	}
	onLeave := map[string]bool{}
	for _, r := range approved {
		if !onLeave[r.EmployeeID] {
			onLeave[r.EmployeeID] = true
			result.EmployeeIDs = append(result.EmployeeIDs, r.EmployeeID)
		}
	}
	result.OnLeave = len(onLeave)
	result.Conflict = result.OnLeave > 0 && float64(result.OnLeave) >= result.Threshold*float64(result.TeamSize)
	return result, nil
}

// monthsBetween returns whole calendar months elapsed from start to end.
func monthsBetween(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// checkBalance reports whether duration more days can be reserved against ent.
func checkBalance(ent LeaveEntitlement, duration int) error {
	available := ent.Remaining - ent.Pending
	if float64(duration) > available {
		return &InsufficientBalanceError{
			Available: available,
			Requested: float64(duration),
			Shortfall: float64(duration) - available,
		}
	}
	return nil
}
