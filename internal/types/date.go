package types

import (
	"time"
)

// AddInterval returns the end of a billing period starting at start.
// Month based intervals clamp to the last day of the target month, so a
// period starting on Jan 31 ends on Feb 28 (or 29).
func AddInterval(start time.Time, interval BillingInterval) time.Time {
	switch interval {
	case BillingIntervalQuarterly:
		return AddClampedDate(start, 0, 3, 0)
	case BillingIntervalYearly:
		return AddClampedDate(start, 1, 0, 0)
	default:
		// monthly and one-time plans both run for a single month period
		return AddClampedDate(start, 0, 1, 0)
	}
}

// AddClampedDate adds years, months and days to t, clamping the day to the
// last valid day of the resulting month.
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

	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1).Day()

	if d > lastDay {
		d = lastDay
	}

	return time.Date(newY, newM, d, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}
