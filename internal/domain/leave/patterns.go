package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

type PatternSummary struct {
	EmployeesScanned int      `json:"employeesScanned"`
	Flagged          int      `json:"flagged"`
	PatternIDs       []string `json:"patternIds"`
}

// DetectPatterns flags employees whose approved leave in the last three
// months covers more than five Mondays or Fridays. Days after now are not
// counted, so leave approved for the future is not history yet.
func (s *Service) DetectPatterns(ctx context.Context, now time.Time) (PatternSummary, error) {
	summary := PatternSummary{PatternIDs: []string{}}
	now = now.UTC()
	since := DateOnly(now.AddDate(0, -patternLookbackMonths, 0))
	end := DateOnly(now)
	reqs, err := s.Store.ListRequests(ctx, RequestFilter{
		Statuses:    []string{StatusApproved},
		OverlapFrom: &since,
		OverlapTo:   &end,
	})
	if err != nil {
		return summary, err
	}

	counts := map[string]int{}
	for _, r := range reqs {
		if r.From.Before(since) || r.From.After(end) {
			continue
		}
		to := r.To
		if to.After(end) {
			to = end
		}
		counts[r.EmployeeID] += mondayFridayDays(r.From, to)
	}
	employees := make([]string, 0, len(counts))
	for id := range counts {
		employees = append(employees, id)
	}
	sort.Strings(employees)
	summary.EmployeesScanned = len(employees)

	for _, employeeID := range employees {
		count := counts[employeeID]
		if count <= patternMondayFridayMinimum {
			continue
		}
		details := fmt.Sprintf("%d Monday/Friday leave days since %s", count, since.Format(isoDate))
		pattern, err := s.Store.FindOpenPattern(ctx, employeeID, PatternMondayFriday)
		switch {
		case errors.Is(err, ErrNotFound):
			pattern = LeavePattern{EmployeeID: employeeID, PatternType: PatternMondayFriday}
		case err != nil:
			slog.Warn("leave pattern lookup failed", "employeeId", employeeID, "err", err)
			continue
		}
		pattern.OccurrenceCount = count
		pattern.Details = details
		pattern.DetectionDate = now
		saved, err := s.Store.SavePattern(ctx, pattern)
		if err != nil {
			slog.Warn("leave pattern save failed", "employeeId", employeeID, "err", err)
			continue
		}
		summary.Flagged++
		summary.PatternIDs = append(summary.PatternIDs, saved.ID)
	}
	return summary, nil
}

func mondayFridayDays(from, to time.Time) int {
	count := 0
	for d := DateOnly(from); !d.After(DateOnly(to)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Monday || wd == time.Friday {
			count++
		}
	}
	return count
}

func (s *Service) AcknowledgePattern(ctx context.Context, id, actorID string) (LeavePattern, error) {
	pattern, err := s.Store.GetPattern(ctx, id)
	if err != nil {
		return LeavePattern{}, err
	}
	if pattern.Acknowledged {
		return LeavePattern{}, invalidState("pattern already acknowledged")
	}
	now := s.now()
	pattern.Acknowledged = true
	pattern.AcknowledgedBy = actorID
	pattern.AcknowledgedAt = &now
	return s.Store.SavePattern(ctx, pattern)
}

func (s *Service) ListPatterns(ctx context.Context, employeeID string, openOnly bool) ([]LeavePattern, error) {
	return s.Store.ListPatterns(ctx, employeeID, openOnly)
}
