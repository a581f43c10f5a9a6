package types

import (
	"fmt"
	"time"
)

// NextBillingDate returns the end of a billing period starting at start.
// Month arithmetic is clamped so Jan 31 + 1 month lands on the last day of February.
func NextBillingDate(start time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case BillingCycleMonthly:
		return AddClampedDate(start, 0, 1, 0), nil
	case BillingCycleYearly:
		return AddClampedDate(start, 1, 0, 0), nil
	default:
		return start, fmt.Errorf("invalid billing cycle: %s", cycle)
	}
}

// AddClampedDate adds years and months clamping the day to the last valid day
// of the target month, then adds days.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	lastDay := time.Date(newY, newM+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}

	return time.Date(newY, newM, d, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}

// DaysUntil returns the number of whole days from now until t, never negative
func DaysUntil(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now).Hours() / 24)
}
