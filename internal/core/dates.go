package core

import "time"

// WithinCurrentMonth reports whether date falls inside the calendar month
// of now, inclusive of the first and last day. Daily entries outside this
// window are rejected before they reach persistence.
func WithinCurrentMonth(date, now time.Time) bool {
	return date.Year() == now.Year() && date.Month() == now.Month()
}

// MonthRange returns the inclusive first and last day of now's month,
// truncated to midnight in now's location.
func MonthRange(now time.Time) (first, last time.Time) {
	first = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last = first.AddDate(0, 1, -1)
	return first, last
}
