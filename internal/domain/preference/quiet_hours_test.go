package preference

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func TestIsInQuietHoursOvernight(t *testing.T) {
	t.Parallel()
	window := QuietHours{Start: "22:00", End: "08:00"}
	tests := []struct {
		now  time.Time
		want bool
	}{
		{at(23, 30), true},
		{at(3, 0), true},
		{at(12, 0), false},
		{at(22, 0), true},
		{at(21, 59), false},
		{at(8, 0), false},
		{at(7, 59), true},
		{at(0, 0), true},
	}
	for _, tt := range tests {
		if got := IsInQuietHours(window, tt.now); got != tt.want {
			t.Fatalf("IsInQuietHours(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.want)
		}
	}
}

func TestIsInQuietHoursSameDay(t *testing.T) {
	t.Parallel()
	window := QuietHours{Start: "12:00", End: "14:00"}
	if !IsInQuietHours(window, at(12, 0)) || !IsInQuietHours(window, at(13, 59)) {
		t.Fatal("expected inside")
	}
	if IsInQuietHours(window, at(14, 0)) || IsInQuietHours(window, at(11, 59)) {
		t.Fatal("expected outside")
	}
	if IsInQuietHours(QuietHours{Start: "09:00", End: "09:00"}, at(9, 0)) {
		t.Fatal("equal bounds should be an empty window")
	}
}

func TestNextAvailableInstant(t *testing.T) {
	t.Parallel()
	window := QuietHours{Start: "22:00", End: "08:00"}

	got := NextAvailableInstant(window, at(23, 30))
	want := time.Date(2026, time.March, 11, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("after start: got %v, want %v", got, want)
	}

	got = NextAvailableInstant(window, at(3, 0))
	want = time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("after midnight: got %v, want %v", got, want)
	}

	got = NextAvailableInstant(window, at(8, 0))
	want = time.Date(2026, time.March, 11, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("exactly at end must advance a day: got %v, want %v", got, want)
	}
}

func TestNextAvailableInstantKeepsLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, time.March, 10, 23, 0, 0, 0, loc)
	got := NextAvailableInstant(QuietHours{Start: "22:00", End: "07:00"}, now)
	if got.Location() != loc || got.Hour() != 7 || got.Day() != 11 {
		t.Fatalf("unexpected instant %v", got)
	}
}

// The next available instant is never itself inside the window.
func TestNextAvailableInstantNeverInsideWindow(t *testing.T) {
	t.Parallel()
	clocks := []string{"00:00", "06:30", "08:00", "12:00", "13:45", "22:00", "23:59"}
	for _, start := range clocks {
		for _, end := range clocks {
			window := QuietHours{Start: start, End: end}
			for minute := 0; minute < 24*60; minute += 7 {
				now := at(minute/60, minute%60)
				next := NextAvailableInstant(window, now)
				if !next.After(now) {
					t.Fatalf("%v at %s: next %v not after now", window, now.Format("15:04"), next)
				}
				if IsInQuietHours(window, next) {
					t.Fatalf("%v at %s: next %s is inside the window", window, now.Format("15:04"), next.Format("15:04"))
				}
			}
		}
	}
}
