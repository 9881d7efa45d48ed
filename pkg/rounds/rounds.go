// Package rounds maps timestamps to the weekly accounting rounds they fall under.
// A round runs from Sunday 00:00 UTC to the next Sunday 00:00 UTC, and is identified
// by its closing boundary, the due-date.
package rounds

import "time"

// RoundLen is the fixed length of a single round.
const RoundLen = 7 * 24 * time.Hour

// DueDate returns the due-date of the round containing ts: the timestamp is rounded
// down to the start of its round, then advanced by one RoundLen. Due-dates form a
// fixed-width partition of time, so for any ts the result is the unique boundary
// with DueDate(ts)-RoundLen <= ts < DueDate(ts).
func DueDate(ts time.Time) time.Time {
	ts = ts.UTC()
	start := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	start = start.AddDate(0, 0, -int(start.Weekday())) // back to Sunday
	return start.Add(RoundLen)
}

// Prev returns the due-date of the round immediately before due.
func Prev(due time.Time) time.Time {
	return due.Add(-RoundLen)
}

// Next returns the due-date of the round immediately after due.
func Next(due time.Time) time.Time {
	return due.Add(RoundLen)
}
