package shared

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
// Leave is booked in whole days so any time of day is dropped.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, value)
		if tsErr != nil {
			return time.Time{}, err
		}
		parsed = ts.UTC()
	}
	y, m, d := parsed.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
