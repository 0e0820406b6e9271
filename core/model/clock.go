package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the upper bound of a clock value.
const MinutesPerDay = 24 * 60

// ParseClock parses an "HH:MM" (or "H:MM") value into minutes since midnight.
// ok is false for empty or malformed input.
func ParseClock(s string) (minute int, ok bool) {
	s = strings.TrimSpace(s)
	h, m, found := strings.Cut(s, ":")
	if !found || len(m) != 2 || h == "" || len(h) > 2 {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 24 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	if hh == 24 && mm != 0 {
		return 0, false
	}
	return hh*60 + mm, true
}

// MinuteOf returns the parsed clock value or fallback when s is not a valid clock.
func MinuteOf(s string, fallback int) int {
	if m, ok := ParseClock(s); ok {
		return m
	}
	return fallback
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	if minute < 0 {
		minute = 0
	}
	if minute > MinutesPerDay {
		minute = MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// SnapUp rounds m up to the next multiple of step. A non-positive step
// returns m unchanged.
func SnapUp(m, step int) int {
	if step <= 0 {
		return m
	}
	if r := m % step; r != 0 {
		if m < 0 {
			return m - r
		}
		return m + step - r
	}
	return m
}

// Window is the operating range [Start, End) of a day in minutes.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether no interval can fit in the window.
func (w Window) Empty() bool { return w.End <= w.Start }

// Clamp bounds m to the window.
func (w Window) Clamp(m int) int {
	if m < w.Start {
		return w.Start
	}
	if m > w.End {
		return w.End
	}
	return m
}

// Fits reports whether [start, start+duration) lies inside the window.
func (w Window) Fits(start, duration int) bool {
	return start >= w.Start && start+duration <= w.End
}
