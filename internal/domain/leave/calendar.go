package leave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const isoDate = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HolidaySet is keyed by ISO date.
type HolidaySet map[string]struct{}

// NewHolidaySet expands multi-day holidays to every date they cover.
func NewHolidaySet(cal Calendar) HolidaySet {
	set := HolidaySet{}
	for _, h := range cal.Holidays {
		start := DateOnly(h.Date)
		end := start
		if h.EndDate != nil && h.EndDate.After(start) {
			end = DateOnly(*h.EndDate)
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			set[d.Format(isoDate)] = struct{}{}
		}
	}
	return set
}

func (h HolidaySet) Contains(day time.Time) bool {
	_, ok := h[DateOnly(day).Format(isoDate)]
	return ok
}

// WorkingDays counts weekdays in [from, to] that are not holidays.
func WorkingDays(from, to time.Time, holidays HolidaySet) int {
	start, end := DateOnly(from), DateOnly(to)
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if holidays.Contains(d) {
			continue
		}
		days++
	}
	return days
}

// Duration resolves working days using only the holiday calendar of from's year.
func (s *Service) Duration(ctx context.Context, from, to time.Time) (int, error) {
	cal, err := s.Store.GetCalendar(ctx, from.Year())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return WorkingDays(from, to, NewHolidaySet(cal)), nil
}

func (s *Service) GetCalendar(ctx context.Context, year int) (Calendar, error) {
	return s.Store.GetCalendar(ctx, year)
}

func (s *Service) SaveCalendar(ctx context.Context, cal Calendar) (Calendar, error) {
	if cal.Year < 1900 || cal.Year > 9999 {
		return Calendar{}, &RuleError{Rule: RuleDateRange, Message: "calendar year is invalid"}
	}
	seen := map[string]bool{}
	for i, h := range cal.Holidays {
		if err := validateHoliday(cal.Year, h); err != nil {
			return Calendar{}, err
		}
		key := DateOnly(h.Date).Format(isoDate)
		if seen[key] {
			return Calendar{}, &RuleError{Rule: RuleDateRange, Message: fmt.Sprintf("duplicate holiday on %s", key)}
		}
		seen[key] = true
		cal.Holidays[i] = normalizeHoliday(h)
	}
	sortHolidays(cal.Holidays)
	if err := s.Store.SaveCalendar(ctx, cal); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

// AddHolidays appends holidays one by one; a failing item does not stop the batch.
func (s *Service) AddHolidays(ctx context.Context, year int, holidays []Holiday) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(holidays))
	err := s.Store.InTx(ctx, func(store StoreAPI) error {
		cal, err := store.GetCalendar(ctx, year)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		cal.Year = year
		existing := NewHolidaySet(Calendar{Holidays: cal.Holidays})
		for i, h := range holidays {
			res := ItemResult{Index: i}
			if err := validateHoliday(year, h); err != nil {
				res.Error = err.Error()
				results = append(results, res)
				continue
			}
			key := DateOnly(h.Date).Format(isoDate)
			if existing.Contains(h.Date) {
				res.Error = fmt.Sprintf("holiday already exists on %s", key)
				results = append(results, res)
				continue
			}
			cal.Holidays = append(cal.Holidays, normalizeHoliday(h))
			existing[key] = struct{}{}
			res.ID = key
			res.Success = true
			results = append(results, res)
		}
		sortHolidays(cal.Holidays)
		return store.SaveCalendar(ctx, cal)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) RemoveHoliday(ctx context.Context, year int, date time.Time) error {
	return s.Store.InTx(ctx, func(store StoreAPI) error {
		cal, err := store.GetCalendar(ctx, year)
		if err != nil {
			return err
		}
		target := DateOnly(date)
		kept := cal.Holidays[:0]
		removed := false
		for _, h := range cal.Holidays {
			if DateOnly(h.Date).Equal(target) {
				removed = true
				continue
			}
			kept = append(kept, h)
		}
		if !removed {
			return notFound("holiday")
		}
		cal.Holidays = kept
		return store.SaveCalendar(ctx, cal)
	})
}

func validateHoliday(year int, h Holiday) error {
	if h.Date.IsZero() {
		return &RuleError{Rule: RuleDateRange, Message: "holiday date is required"}
	}
	if h.Date.Year() != year {
		return &RuleError{Rule: RuleDateRange, Message: fmt.Sprintf("holiday %s is outside calendar year %d", h.Date.Format(isoDate), year)}
	}
	if h.EndDate != nil && h.EndDate.Before(h.Date) {
		return &RuleError{Rule: RuleDateRange, Message: "holiday end date is before its start date"}
	}
	return nil
}

func normalizeHoliday(h Holiday) Holiday {
	h.Date = DateOnly(h.Date)
	if h.EndDate != nil {
		end := DateOnly(*h.EndDate)
		h.EndDate = &end
	}
	return h
}

func sortHolidays(hs []Holiday) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Date.Before(hs[j].Date) })
}
