package preference

import "time"

// minutes converts a window to minutes since midnight. Malformed bounds fall
// back to the default window so callers stay total.
func (q QuietHours) minutes() (start, end int) {
	sh, sm, errStart := ParseHHMM(q.Start)
	eh, em, errEnd := ParseHHMM(q.End)
	if errStart != nil || errEnd != nil {
		sh, sm, _ = ParseHHMM(DefaultQuietHoursStart)
		eh, em, _ = ParseHHMM(DefaultQuietHoursEnd)
	}
	return sh*60 + sm, eh*60 + em
}

// IsInQuietHours reports whether now (already in the recipient's local zone)
// falls inside the window. A window whose start is later than its end wraps
// past midnight. Equal bounds describe an empty window.
func IsInQuietHours(window QuietHours, now time.Time) bool {
	start, end := window.minutes()
	cur := now.Hour()*60 + now.Minute()
	if start > end {
		return cur >= start || cur < end
	}
	return start <= cur && cur < end
}

// NextAvailableInstant returns today's window end in now's location, or the
// same clock time tomorrow when today's end is not strictly after now.
func NextAvailableInstant(window QuietHours, now time.Time) time.Time {
	_, end := window.minutes()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), end/60, end%60, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = time.Date(now.Year(), now.Month(), now.Day()+1, end/60, end%60, 0, 0, now.Location())
	}
	return candidate
}
