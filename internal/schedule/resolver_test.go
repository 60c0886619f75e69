package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/glizzus/mustard/internal/schedule"
)

func everyDay(entries ...string) schedule.WeeklySchedule {
	var w schedule.WeeklySchedule
	for i := range w {
		w[i] = append([]string{}, entries...)
	}
	return w
}

func onDay(day time.Weekday, entries ...string) schedule.WeeklySchedule {
	var w schedule.WeeklySchedule
	w[day] = entries
	return w
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s not available: %v", name, err)
	}
	return loc
}

func TestNextOccurrenceAt(t *testing.T) {
	newYork := mustLoad(t, "America/New_York")

	tests := []struct {
		name     string
		now      time.Time
		timezone string
		weekly   schedule.WeeklySchedule
		offset   int64
		want     time.Time
	}{
		{
			name:     "before today's slot picks today",
			now:      time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   everyDay("09:00"),
			want:     time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "one second past the slot picks tomorrow",
			now:      time.Date(2024, 1, 10, 9, 0, 1, 0, time.UTC),
			timezone: "UTC",
			weekly:   everyDay("09:00"),
			want:     time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "look-ahead offset keeps today's slot",
			now:      time.Date(2024, 1, 10, 11, 59, 31, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "12:00"),
			offset:   60,
			want:     time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "look-ahead offset covers a slot that just started",
			now:      time.Date(2024, 1, 10, 12, 0, 30, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "12:00"),
			offset:   60,
			want:     time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "look-back offset falls through to next week",
			now:      time.Date(2024, 1, 10, 11, 59, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "12:00"),
			offset:   -120,
			want:     time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "slot only earlier today wraps to same weekday next week",
			now:      time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "09:00"),
			want:     time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "wraps past saturday into sunday",
			now:      time.Date(2024, 1, 13, 22, 0, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Sunday, "10:00"),
			want:     time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "unsorted entries resolve to the earliest eligible",
			now:      time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "18:00", "09:00", "08:00"),
			want:     time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "malformed entries are skipped",
			now:      time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
			timezone: "UTC",
			weekly:   onDay(time.Wednesday, "bogus", "7:5", "10:00"),
			want:     time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "wall clock is interpreted in the target zone",
			now:      time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC), // 08:00 EST
			timezone: "America/New_York",
			weekly:   everyDay("09:00"),
			want:     time.Date(2024, 1, 10, 9, 0, 0, 0, newYork),
		},
		{
			name:     "slot after spring forward keeps its wall clock",
			now:      time.Date(2024, 3, 9, 12, 0, 0, 0, newYork),
			timezone: "America/New_York",
			weekly:   onDay(time.Sunday, "20:00"),
			want:     time.Date(2024, 3, 10, 20, 0, 0, 0, newYork),
		},
		{
			name:     "slot inside the spring-forward gap moves past it",
			now:      time.Date(2024, 3, 9, 12, 0, 0, 0, newYork),
			timezone: "America/New_York",
			weekly:   onDay(time.Sunday, "02:30"),
			want:     time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC), // 03:30 EDT
		},
		{
			name:     "slot after fall back keeps its wall clock",
			now:      time.Date(2024, 11, 2, 12, 0, 0, 0, newYork),
			timezone: "America/New_York",
			weekly:   onDay(time.Sunday, "20:00"),
			want:     time.Date(2024, 11, 4, 1, 0, 0, 0, time.UTC), // 20:00 EST
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schedule.NextOccurrenceAt(tt.now, tt.timezone, tt.weekly, tt.offset)
			if err != nil {
				t.Fatalf("NextOccurrenceAt returned error: %v", err)
			}
			if got != tt.want.Unix() {
				t.Errorf("NextOccurrenceAt() = %v; want %v", time.Unix(got, 0).UTC(), tt.want.UTC())
			}
		})
	}
}

func TestNextOccurrenceEmptySchedule(t *testing.T) {
	for _, tz := range []string{"", "UTC", "America/New_York", "Not/A_Zone"} {
		for _, offset := range []int64{-3600, 0, 3600} {
			got, err := schedule.NextOccurrence(tz, schedule.WeeklySchedule{}, offset)
			if err != nil {
				t.Errorf("NextOccurrence(%q, empty, %d) returned error: %v", tz, offset, err)
			}
			if got != 0 {
				t.Errorf("NextOccurrence(%q, empty, %d) = %d; want 0", tz, offset, got)
			}
		}
	}
}

func TestNextOccurrenceOnlyMalformed(t *testing.T) {
	got, err := schedule.NextOccurrence("UTC", everyDay("nope"), 0)
	if err != nil {
		t.Fatalf("NextOccurrence returned error: %v", err)
	}
	if got != 0 {
		t.Errorf("NextOccurrence with only malformed entries = %d; want 0", got)
	}
}

func TestNextOccurrenceUnknownTimezone(t *testing.T) {
	_, err := schedule.NextOccurrence("Not/A_Zone", everyDay("09:00"), 0)
	var tzErr *schedule.UnknownTimezoneError
	if !errors.As(err, &tzErr) {
		t.Fatalf("expected UnknownTimezoneError, got %v", err)
	}
	if tzErr.Name != "Not/A_Zone" {
		t.Errorf("UnknownTimezoneError.Name = %q", tzErr.Name)
	}
}
