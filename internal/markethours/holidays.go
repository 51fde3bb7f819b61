package markethours

import "time"

// Fixed-date days on which the interbank forex market is closed.
var forexHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.December, 25}, // Christmas
}

// IsHoliday returns true if the UTC date of t is a forex holiday.
func IsHoliday(t time.Time) bool {
	u := t.UTC()
	for _, h := range forexHolidays {
		if u.Month() == h.month && u.Day() == h.day {
			return true
		}
	}
	return false
}
