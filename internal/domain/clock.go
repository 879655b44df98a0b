package domain

import (
	"errors"
	"fmt"
	"time"
)

// All schedule times are trainer-local wall-clock values: dates are midnight in the
// configured location and times of day are 24h "HH:MM" strings.

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	DaysPerWeek = 7
)

var ErrBadTimeFormat = errors.New("bad time format")

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(value string) (int, error) {
	if len(value) != len(ClockLayout) {
		return 0, fmt.Errorf("%w: %q", ErrBadTimeFormat, value)
	}
	t, err := time.Parse(ClockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimeFormat, value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// NormalizeWeekStart returns Monday 00:00 of the week containing t.
// Sunday belongs to the week that started six days earlier.
func NormalizeWeekStart(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekBounds returns [Monday 00:00, next Monday 00:00) of the week containing t, both in loc.
// t may be in any location (the driver decodes dates as UTC); a week that spans a DST change
// is not 168 hours long.
func WeekBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := NormalizeWeekStart(t, loc)
	return start, start.AddDate(0, 0, DaysPerWeek)
}

// At combines a date with an "HH:MM" wall-clock time in loc.
func At(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	day := StartOfDay(date, loc)
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

// ParseDate parses a "YYYY-MM-DD" date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, value)
	}
	return t, nil
}

// ClockRangesOverlap reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Inputs are minutes since midnight.
func ClockRangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
