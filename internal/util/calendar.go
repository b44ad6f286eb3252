package util

import "time"

// IsBusinessDay reports whether t falls on Monday through Friday. Exchange
// holidays are not modelled.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay returns the first business day at or after t.
func NextBusinessDay(t time.Time) time.Time {
	for !IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// BusinessDays returns n consecutive business days starting at the first
// business day on or after start. Times are truncated to midnight in start's
// location.
func BusinessDays(start time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	d = NextBusinessDay(d)

	days := make([]time.Time, 0, n)
	for len(days) < n {
		days = append(days, d)
		d = NextBusinessDay(d.AddDate(0, 0, 1))
	}
	return days
}

// DayAfter returns midnight at the start of the calendar day after t, in t's
// location. Date ranges use it as an exclusive upper bound so that bars
// stamped at any time on the end date are included.
func DayAfter(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
