package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/cronexpr"
)

// NextRunTimes returns the next N run times that a cron expression will run.
// Each run time is in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	cutoff := time.Now().UTC()
	return NextRunTimesAfter(cron, cutoff, n)
}

// NextRunTimesAfter returns the next N run times after a specific time, in
// the location of after.
// It returns an error if the cron expression is invalid or if count is less than 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

func ValidateCron(cron string) error {
	_, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// CronSpecs renders every entry of weekly as a five-field cron expression
// ("MM HH * * DOW"), Sunday first, in schedule order.
func CronSpecs(weekly WeeklySchedule) ([]string, error) {
	var specs []string
	for day, entries := range weekly {
		for _, entry := range entries {
			hour, minute, err := ParseTimeOfDay(entry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", time.Weekday(day), err)
			}
			specs = append(specs, fmt.Sprintf("%d %d * * %d", minute, hour, day))
		}
	}
	return specs, nil
}

// UpcomingOccurrences returns the next n broadcast slots of weekly after the
// given instant, evaluated in timezone. Slots shared by several entries are
// reported once.
func UpcomingOccurrences(timezone string, weekly WeeklySchedule, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	if weekly.IsEmpty() {
		return nil, nil
	}

	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	specs, err := CronSpecs(weekly)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var all []time.Time
	for _, spec := range specs {
		times, err := NextRunTimesAfter(spec, after.In(loc), n)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", spec, err)
		}
		for _, t := range times {
			if _, dup := seen[t.Unix()]; dup {
				continue
			}
			seen[t.Unix()] = struct{}{}
			all = append(all, t)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}
