package models

import (
	"fmt"
	"time"
)

// PeriodLayout is the calendar-month contest period key format, e.g. "2025-08".
const PeriodLayout = "2006-01"

// CurrentPeriod returns the period key the given instant falls into.
func CurrentPeriod(now time.Time) string {
	return now.Format(PeriodLayout)
}

// PreviousPeriod returns the key of the period immediately preceding the one
// containing now. This is the period a scheduled settlement run targets.
func PreviousPeriod(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return firstOfMonth.AddDate(0, 0, -1).Format(PeriodLayout)
}

// ParsePeriod validates a period key and returns the start of that month.
func ParsePeriod(key string) (time.Time, error) {
	t, err := time.Parse(PeriodLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period key %q (use YYYY-MM): %w", key, err)
	}
	return t, nil
}

// PeriodBounds returns the inclusive start and exclusive end of a period.
func PeriodBounds(key string) (time.Time, time.Time, error) {
	start, err := ParsePeriod(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}
