package schedule

import (
	"time"
)

// NextOccurrence returns the next broadcast slot of weekly, as Unix seconds,
// relative to the current wall clock. See NextOccurrenceAt.
func NextOccurrence(timezone string, weekly WeeklySchedule, offsetSeconds int64) (int64, error) {
	return NextOccurrenceAt(time.Now(), timezone, weekly, offsetSeconds)
}

// NextOccurrenceAt returns the first slot of weekly that is strictly after the
// reference instant, which is now in the target zone, truncated to the minute,
// moved back by offsetSeconds. A positive offset looks ahead (a slot starting
// within offsetSeconds of now is still "next"), a negative one looks back.
//
// It returns 0 when the schedule has no entries at all; this is decided before
// the timezone is consulted, so an unconfigured account resolves cleanly.
// Entries that do not parse as HH:MM are skipped.
func NextOccurrenceAt(now time.Time, timezone string, weekly WeeklySchedule, offsetSeconds int64) (int64, error) {
	if weekly.IsEmpty() {
		return 0, nil
	}

	loc, err := LoadLocation(timezone)
	if err != nil {
		return 0, err
	}

	ref := now.In(loc).Truncate(time.Minute).Add(-time.Duration(offsetSeconds) * time.Second)
	refSeconds := ref.Hour()*3600 + ref.Minute()*60 + ref.Second()
	year, month, day := ref.Date()

	// Offset 7 revisits today's weekday a week later, so entries that only
	// exist earlier today still resolve.
	for dayOffset := 0; dayOffset <= DaysPerWeek; dayOffset++ {
		weekday := (int(ref.Weekday()) + dayOffset) % DaysPerWeek
		hour, minute, ok := earliestEntry(weekly[weekday], func(h, m int) bool {
			return dayOffset > 0 || h*3600+m*60 > refSeconds
		})
		if !ok {
			continue
		}
		return wallClockInstant(year, month, day+dayOffset, hour, minute, loc).Unix(), nil
	}

	return 0, nil
}

// earliestEntry returns the smallest parseable entry accepted by keep.
func earliestEntry(entries []string, keep func(hour, minute int) bool) (int, int, bool) {
	best := -1
	for _, entry := range entries {
		h, m, err := ParseTimeOfDay(entry)
		if err != nil {
			continue
		}
		if !keep(h, m) {
			continue
		}
		if v := h*60 + m; best < 0 || v < best {
			best = v
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best / 60, best % 60, true
}

// wallClockInstant converts a local calendar date and time into an instant.
//
// time.Date normalizes the date and picks a UTC offset. When the requested
// wall clock does not exist (a daylight-saving gap) the normalized result
// reads a different hour, so the intended hour and minute are re-applied
// under the offset in force before the transition and the instant is
// normalized into the zone again. A 02:30 slot on a spring-forward night
// therefore fires at 03:30 local, one real hour after 01:30.
func wallClockInstant(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Hour() == hour && t.Minute() == minute {
		return t
	}

	_, offset := time.Date(year, month, day-1, hour, minute, 0, 0, loc).Zone()
	naive := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	return naive.Add(-time.Duration(offset) * time.Second).In(loc)
}
