package recurring

import (
	"time"

	"github.com/taskloop/automation/internal/contracts"
)

// NextDueDate advances a due date by one recurrence interval. Monthly means
// one calendar month with the day clamped to the target month's length
// (Jan 31 -> Feb 28/29, never Mar 2/3). An unrecognized interval falls back
// to daily.
func NextDueDate(current time.Time, interval string) time.Time {
	switch interval {
	case contracts.IntervalWeekly:
		return current.AddDate(0, 0, 7)
	case contracts.IntervalMonthly:
		return addCalendarMonth(current)
	default:
		return current.AddDate(0, 0, 1)
	}
}

func addCalendarMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	// Day zero of month+2 normalizes to the last day of month+1.
	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month+1, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
