package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDayLayout is the layout of a single schedule entry.
const TimeOfDayLayout = "15:04"

// DaysPerWeek is the number of slots in a WeeklySchedule.
const DaysPerWeek = 7

// WeeklySchedule holds the broadcast times of each weekday, Sunday first.
// Each entry is a zero-padded 24-hour "HH:MM" string.
type WeeklySchedule [DaysPerWeek][]string

// IsEmpty reports whether no day has any entry.
func (w WeeklySchedule) IsEmpty() bool {
	for _, day := range w {
		if len(day) > 0 {
			return false
		}
	}
	return true
}

// Day returns the entries for the given weekday.
func (w WeeklySchedule) Day(d time.Weekday) []string {
	return w[int(d)%DaysPerWeek]
}

// Clone returns a deep copy, so callers can mutate the result freely.
func (w WeeklySchedule) Clone() WeeklySchedule {
	var out WeeklySchedule
	for i, day := range w {
		out[i] = append([]string{}, day...)
	}
	return out
}

// Normalized returns a copy where every day is a non-nil slice.
// Persisted and exported schedules always use this shape.
func (w WeeklySchedule) Normalized() WeeklySchedule {
	out := w.Clone()
	for i := range out {
		if out[i] == nil {
			out[i] = []string{}
		}
	}
	return out
}

// ParseTimeOfDay parses an "HH:MM" entry into hour and minute.
func ParseTimeOfDay(entry string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q: expected HH:MM", entry)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", entry)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", entry)
	}
	return hour, minute, nil
}

// ValidateWeekly checks every entry of the schedule.
func ValidateWeekly(w WeeklySchedule) error {
	for day, entries := range w {
		for _, entry := range entries {
			if _, _, err := ParseTimeOfDay(entry); err != nil {
				return fmt.Errorf("%s: %w", time.Weekday(day), err)
			}
		}
	}
	return nil
}

// UnknownTimezoneError is returned when an IANA zone name cannot be loaded.
type UnknownTimezoneError struct {
	Name string
	Err  error
}

func (e *UnknownTimezoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q: %v", e.Name, e.Err)
}

func (e *UnknownTimezoneError) Unwrap() error {
	return e.Err
}

var _ error = (*UnknownTimezoneError)(nil)

// LoadLocation loads an IANA zone. An empty name or "Local" means the
// process-local zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &UnknownTimezoneError{Name: name, Err: err}
	}
	return loc, nil
}
