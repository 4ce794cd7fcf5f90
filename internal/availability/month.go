package availability

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// MonthStart returns midnight UTC on the first day of t's calendar month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth parses a "YYYY-MM" string. An empty string yields the month of now.
func ParseMonth(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return MonthStart(now), nil
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing month %q: expected YYYY-MM", s)
	}
	return t, nil
}

// FormatMonth renders the month as "YYYY-MM".
func FormatMonth(t time.Time) string {
	return t.Format(monthLayout)
}

// StartDate is the ISO-8601 query timestamp the feed expects for a month.
func StartDate(month time.Time) string {
	return MonthStart(month).Format("2006-01-02") + "T00:00:00.000Z"
}
