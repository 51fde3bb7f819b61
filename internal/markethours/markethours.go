// Package markethours models the forex trading week and the symbol aliasing
// that depends on it. Every function is pure in its time argument.
package markethours

import (
	"fmt"
	"time"
)

// The forex week runs from Sunday 22:00 UTC to Friday 22:00 UTC.
const (
	WeekOpenDay   = time.Sunday
	WeekCloseDay  = time.Friday
	SessionHour   = 22 // UTC hour of the weekly open and close
	maxScanHours  = 24 * 14
	scanStepHours = 1
)

// IsMarketOpen returns true if t falls within the forex trading week and is
// not a closed holiday.
func IsMarketOpen(t time.Time) bool {
	u := t.UTC()
	if IsHoliday(u) {
		return false
	}
	switch u.Weekday() {
	case time.Saturday:
		return false
	case WeekOpenDay:
		return u.Hour() >= SessionHour
	case WeekCloseDay:
		return u.Hour() < SessionHour
	default:
		return true
	}
}

// NextOpen returns t if the market is open, otherwise the next time it opens.
func NextOpen(t time.Time) time.Time {
	return scan(t, true)
}

// NextClose returns t if the market is closed, otherwise the next time it closes.
func NextClose(t time.Time) time.Time {
	return scan(t, false)
}

// Sessions change only on whole UTC hours, so an hourly scan is exact.
func scan(t time.Time, open bool) time.Time {
	u := t.UTC()
	if IsMarketOpen(u) == open {
		return u
	}
	h := u.Truncate(time.Hour)
	for i := 0; i < maxScanHours; i += scanStepHours {
		h = h.Add(scanStepHours * time.Hour)
		if IsMarketOpen(h) == open {
			return h
		}
	}
	return h
}

// TimeUntilClose returns the duration until the market closes.
// Returns 0 if the market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	if !IsMarketOpen(t) {
		return 0
	}
	return NextClose(t).Sub(t.UTC())
}

// TimeUntilOpen returns the duration until the next open (0 when open).
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.UTC())
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Forex open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	return fmt.Sprintf("Forex closed, opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t.UTC())))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
