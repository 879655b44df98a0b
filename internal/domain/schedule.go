package domain

import (
	"fmt"
	"time"

	"alcyxob/fitness-sessions/internal/apperror"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxWindowsPerDay = 5
	WindowMinutes    = 60
)

// DayNames is the fixed, ordered set of day names; the index is the offset from weekStart.
var DayNames = [DaysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayOffset returns the offset of a day name from Monday, or -1 when the name is unknown.
func DayOffset(name string) int {
	for i, n := range DayNames {
		if n == name {
			return i
		}
	}
	return -1
}

// TimeWindow is one bookable hour inside a day of the weekly template.
type TimeWindow struct {
	ID        string `bson:"id" json:"id"`
	StartTime string `bson:"startTime" json:"startTime"` // "HH:MM"
	EndTime   string `bson:"endTime" json:"endTime"`     // "HH:MM"
}

// DaySchedule is one weekday of the template.
type DaySchedule struct {
	Day      string       `bson:"day" json:"day"`
	IsActive bool         `bson:"isActive" json:"isActive"`
	Slots    []TimeWindow `bson:"slots" json:"slots"`
}

// WeeklyScheduleTemplate is a trainer's recurring availability for one week.
// It is replaced wholesale on every save.
type WeeklyScheduleTemplate struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	WeekStart time.Time          `bson:"weekStart" json:"weekStart"` // Monday 00:00
	Schedule  []DaySchedule      `bson:"schedule" json:"schedule"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Week returns the template's week bounds in loc.
func (t *WeeklyScheduleTemplate) Week(loc *time.Location) (time.Time, time.Time) {
	return WeekBounds(t.WeekStart, loc)
}

// CloneDays deep-copies the day structure so a rolled-forward template shares no slices.
func CloneDays(days []DaySchedule) []DaySchedule {
	out := make([]DaySchedule, len(days))
	for i, d := range days {
		out[i] = DaySchedule{Day: d.Day, IsActive: d.IsActive, Slots: append([]TimeWindow(nil), d.Slots...)}
	}
	return out
}

// Validation messages for weekly templates.
const (
	MsgUnknownDay     = "unknown day name"
	MsgDuplicateDay   = "day listed more than once"
	MsgTooManyWindows = "at most 5 slots per day"
	MsgWindowLength   = "each slot must be exactly 60 minutes"
	MsgWindowsOverlap = "slots overlap"
)

// NormalizeDays validates a template's days and returns exactly seven entries in
// Monday..Sunday order; days that were not listed come back inactive. Only active days
// have their windows checked. Windows without an id get one from newID.
// The first violation found names the error; every violation is listed in Fields.
func NormalizeDays(days []DaySchedule, newID func() string) ([]DaySchedule, error) {
	out := make([]DaySchedule, DaysPerWeek)
	for i, name := range DayNames {
		out[i] = DaySchedule{Day: name, Slots: []TimeWindow{}}
	}

	fields := map[string]string{}
	first := ""
	fail := func(key, msg string) {
		if first == "" {
			first = msg
		}
		if _, ok := fields[key]; !ok {
			fields[key] = msg
		}
	}

	seen := make(map[int]bool, DaysPerWeek)
	for i, d := range days {
		offset := DayOffset(d.Day)
		if offset < 0 {
			fail(fmt.Sprintf("schedule[%d].day", i), MsgUnknownDay)
			continue
		}
		if seen[offset] {
			fail(fmt.Sprintf("schedule[%d].day", i), MsgDuplicateDay)
			continue
		}
		seen[offset] = true

		windows := make([]TimeWindow, len(d.Slots))
		copy(windows, d.Slots)
		for j := range windows {
			if windows[j].ID == "" {
				windows[j].ID = newID()
			}
		}
		out[offset] = DaySchedule{Day: d.Day, IsActive: d.IsActive, Slots: windows}

		if d.IsActive {
			for _, fe := range checkWindows(d.Day, windows) {
				fail(fe.key, fe.msg)
			}
		}
	}

	if first != "" {
		return nil, apperror.Validation(first, fields)
	}
	return out, nil
}

type fieldError struct{ key, msg string }

// checkWindows returns field errors for one active day, keyed by "<day>.slots[i]", in window order.
func checkWindows(day string, windows []TimeWindow) []fieldError {
	var errs []fieldError
	if len(windows) > MaxWindowsPerDay {
		errs = append(errs, fieldError{day + ".slots", MsgTooManyWindows})
	}

	type span struct{ start, end int }
	spans := make([]*span, len(windows))
	for i, w := range windows {
		key := fmt.Sprintf("%s.slots[%d]", day, i)
		start, err1 := ParseClock(w.StartTime)
		end, err2 := ParseClock(w.EndTime)
		if err1 != nil || err2 != nil {
			errs = append(errs, fieldError{key, ErrBadTimeFormat.Error()})
			continue
		}
		if end-start != WindowMinutes {
			errs = append(errs, fieldError{key, MsgWindowLength})
			continue
		}
		spans[i] = &span{start, end}
	}

	for j := range spans {
		for i := 0; i < j; i++ {
			if spans[i] == nil || spans[j] == nil {
				continue
			}
			if ClockRangesOverlap(spans[i].start, spans[i].end, spans[j].start, spans[j].end) {
				errs = append(errs, fieldError{fmt.Sprintf("%s.slots[%d]", day, j), MsgWindowsOverlap})
				break
			}
		}
	}
	return errs
}
