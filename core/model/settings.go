package model

import (
	"fmt"
	"strings"
)

// Day is one of the six working days.
type Day string

const (
	Monday    Day = "Mon"
	Tuesday   Day = "Tue"
	Wednesday Day = "Wed"
	Thursday  Day = "Thu"
	Friday    Day = "Fri"
	Saturday  Day = "Sat"
)

// Days lists the working days in week order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// ParseDay accepts a day label case-insensitively ("mon", "Monday", "MON").
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 {
		for _, d := range Days {
			if strings.EqualFold(s[:3], string(d)) {
				return d, nil
			}
		}
	}
	return "", fmt.Errorf("unknown day %q", s)
}

// Valid reports whether d is one of Days.
func (d Day) Valid() bool {
	for _, x := range Days {
		if x == d {
			return true
		}
	}
	return false
}

// Settings drive the day window and the placement spacing.
type Settings struct {
	DayStart string `json:"dayStart" yaml:"day_start"`
	DayEnd   string `json:"dayEnd" yaml:"day_end"`
	// Gap is the quantization step of the slot probe, in minutes.
	Gap int `json:"gap" yaml:"gap"`
	// Buffer is the idle time auto-scheduling leaves between two jobs of a truck.
	Buffer    int `json:"buffer" yaml:"buffer"`
	ActiveDay Day `json:"activeDay" yaml:"active_day"`
}

// DefaultSettings returns a 07:00-18:00 window with a 15 minute gap.
func DefaultSettings() Settings {
	return Settings{DayStart: "07:00", DayEnd: "18:00", Gap: 15, ActiveDay: Monday}
}

// Window resolves the day window, falling back to the defaults for invalid clocks.
func (s Settings) Window() Window {
	return Window{Start: MinuteOf(s.DayStart, 7*60), End: MinuteOf(s.DayEnd, 18*60)}
}

// Normalized zero-fills negative spacing values and an unknown active day.
func (s Settings) Normalized() Settings {
	if s.Gap <= 0 {
		s.Gap = 1
	}
	if s.Buffer < 0 {
		s.Buffer = 0
	}
	if !s.ActiveDay.Valid() {
		s.ActiveDay = Monday
	}
	return s
}
