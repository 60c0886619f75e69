package planner_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/glizzus/mustard/internal/announce"
	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/config"
	"github.com/glizzus/mustard/internal/datalayer"
	"github.com/glizzus/mustard/internal/planner"
	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
	"github.com/google/go-cmp/cmp"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, announce.Announcement) error { return nil }

func newStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	db, err := datalayer.OpenSQLite(&config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "mustard.db"),
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := datalayer.MigrateSQLite(db); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return repository.NewSQLiteStore(db)
}

func dailyAt(entry string) schedule.WeeklySchedule {
	var w schedule.WeeklySchedule
	for i := range w {
		w[i] = []string{entry}
	}
	return w
}

func configure(t *testing.T, store repository.Store, ownerID int64, weekly schedule.WeeklySchedule, offset int, tweets ...string) {
	t.Helper()
	err := store.WithTx(t.Context(), ownerID, func(tx repository.Tx) error {
		if err := tx.SetSchedule(t.Context(), "UTC", weekly); err != nil {
			return err
		}
		if err := tx.SetTweetOffset(t.Context(), offset); err != nil {
			return err
		}
		for _, tweet := range tweets {
			if _, err := tx.InsertSetup(t.Context(), repository.Setup{Category: "Art", Tweet: tweet}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to configure owner %d: %v", ownerID, err)
	}
}

func newPlanner(store repository.Store) (*planner.Planner, *schedule.Scheduler) {
	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	return planner.New(store, s, nopAnnouncer{}, planner.WithLogger(quietLogger)), s
}

func TestRefreshKeepsOnePendingAnnouncement(t *testing.T) {
	store := newStore(t)
	p, s := newPlanner(store)
	weekly := dailyAt("12:00")
	configure(t, store, 1, weekly, 600, "", "Painting tonight!")

	for i := 0; i < 3; i++ {
		if err := p.Refresh(t.Context(), 1); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}

	pending := p.Pending(1)
	if len(pending) != 1 {
		t.Fatalf("pending = %d entries; want 1", len(pending))
	}
	if n := s.Len(); n != 1 {
		t.Errorf("scheduler Len() = %d; want 1", n)
	}

	wantEvent, err := schedule.NextOccurrence("UTC", weekly, -600)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	eventAt := time.Unix(wantEvent, 0).UTC()
	want := announce.Announcement{OwnerID: 1, Template: "Painting tonight!", EventAt: eventAt}

	got, err := announce.ParseArgs(pending[0].Args)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("announcement mismatch (-want +got):\n%s", diff)
	}
	if wantDue := eventAt.Add(-10 * time.Minute); !pending[0].Due.Equal(wantDue) {
		t.Errorf("due = %v; want %v", pending[0].Due, wantDue)
	}
}

func TestRefreshEmptyScheduleClearsAnnouncement(t *testing.T) {
	store := newStore(t)
	p, _ := newPlanner(store)
	configure(t, store, 1, dailyAt("12:00"), 0)

	if err := p.Refresh(t.Context(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	configure(t, store, 1, schedule.WeeklySchedule{}, 0)
	if err := p.Refresh(t.Context(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if pending := p.Pending(1); len(pending) != 0 {
		t.Errorf("pending = %v; want none", pending)
	}
}

func TestRefreshLeavesOtherOwnersAlone(t *testing.T) {
	store := newStore(t)
	p, s := newPlanner(store)
	configure(t, store, 1, dailyAt("09:00"), 0)
	configure(t, store, 2, dailyAt("21:30"), 300)

	if err := p.RefreshAll(t.Context()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if err := p.Refresh(t.Context(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	for _, owner := range []int64{1, 2} {
		if n := len(p.Pending(owner)); n != 1 {
			t.Errorf("owner %d has %d pending; want 1", owner, n)
		}
	}
	if n := s.Len(); n != 2 {
		t.Errorf("scheduler Len() = %d; want 2", n)
	}
}

func TestRefreshUsesCache(t *testing.T) {
	store := newStore(t)
	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	c := cache.NewMemoryCache()
	p := planner.New(store, s, nopAnnouncer{},
		planner.WithCache(c, time.Hour),
		planner.WithLogger(quietLogger),
	)
	configure(t, store, 1, dailyAt("12:00"), 120)

	if err := p.Refresh(t.Context(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, ok, err := c.Get(t.Context(), 1, -120); err != nil || !ok {
		t.Errorf("cache Get() = _, %v, %v; want a cached entry", ok, err)
	}
}

type recordingAnnouncer struct {
	got []announce.Announcement
}

func (r *recordingAnnouncer) Announce(_ context.Context, a announce.Announcement) error {
	r.got = append(r.got, a)
	return nil
}

func TestFiredAnnouncementPlansFollowingBroadcast(t *testing.T) {
	store := newStore(t)
	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	rec := &recordingAnnouncer{}
	p := planner.New(store, s, rec, planner.WithLogger(quietLogger))
	configure(t, store, 1, dailyAt("12:00"), 90)

	if err := p.Refresh(t.Context(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	first := p.Pending(1)
	if len(first) != 1 {
		t.Fatalf("pending = %d entries; want 1", len(first))
	}

	// Fire the pending announcement by hand, as the pump would.
	s.Cancel(first[0].Handle)
	if err := p.Action().Run(t.Context(), first[0].Args...); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fired, err := announce.ParseArgs(first[0].Args)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if diff := cmp.Diff([]announce.Announcement{fired}, rec.got); diff != "" {
		t.Errorf("announcements mismatch (-want +got):\n%s", diff)
	}

	next := p.Pending(1)
	if len(next) != 1 {
		t.Fatalf("pending after firing = %d entries; want 1", len(next))
	}
	got, err := announce.ParseArgs(next[0].Args)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if want := fired.EventAt.Add(24 * time.Hour); !got.EventAt.Equal(want) {
		t.Errorf("next event = %v; want %v", got.EventAt, want)
	}
}
