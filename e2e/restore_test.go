package e2e_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/mustard/e2e"
	"github.com/glizzus/mustard/internal/announce"
	"github.com/glizzus/mustard/internal/backup"
	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/generator"
	"github.com/glizzus/mustard/internal/planner"
	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
	"github.com/glizzus/mustard/internal/worker"
	"github.com/google/go-cmp/cmp"
)

const fullBackup = `{
	"setups": [
		{"category": "Art", "title": "Painting", "tags": "art", "tweet": "Painting tonight!", "communities": ["x"], "id": 99},
		{"category": "Just Chatting", "title": "Hello"},
		""
	],
	"schedule": [[], ["19:00"], [], ["19:00"], [], [], [], "America/New_York", 600],
	"checklist": ["mic", "water", ""],
	"timers": [
		{"id": "keep", "title": "Kept", "delta": 30},
		{"title": "Fresh"},
		""
	],
	"": "Mustard-Mine Backup"
}`

func listTimerTitles(t *testing.T, store repository.Store, ownerID int64) map[string]string {
	t.Helper()
	titles := make(map[string]string)
	err := store.WithTx(t.Context(), ownerID, func(tx repository.Tx) error {
		timers, err := tx.ListTimers(t.Context())
		for _, tm := range timers {
			titles[tm.ID] = tm.Title
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to list timers: %v", err)
	}
	return titles
}

func TestRestoreOnPostgres(t *testing.T) {
	store := e2e.GetStore(t, e2e.UsePostgres(t))
	e2e.SeedGlobalNoise(t, store)

	const ownerID = 1
	err := store.WithTx(t.Context(), ownerID, func(tx repository.Tx) error {
		if err := tx.InsertTimer(t.Context(), "keep", repository.TimerPatch{Title: repository.Ptr("Old"), Styling: repository.Ptr("red")}); err != nil {
			return err
		}
		return tx.InsertTimer(t.Context(), "stale", repository.TimerPatch{})
	})
	if err != nil {
		t.Fatalf("failed to seed timers: %v", err)
	}

	engine := backup.NewEngine(store, generator.NewSequence("pg"))
	summary, err := engine.Restore(t.Context(), ownerID, []byte(fullBackup))
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want := []string{
		"Restored schedule",
		"Restored tweet offset",
		"Restored checklist",
		"Updated timer keep",
		"Created timer pg-1",
		"Deleted timer stale",
		"Removed 0 old setups",
		"Restored 2 setups",
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(map[string]string{"keep": "Kept", "pg-1": "Fresh"}, listTimerTitles(t, store, ownerID)); diff != "" {
		t.Errorf("timers mismatch (-want +got):\n%s", diff)
	}

	cfg, err := repository.LoadSchedule(t.Context(), store, ownerID)
	if err != nil {
		t.Fatalf("LoadSchedule() error = %v", err)
	}
	wantSchedule := repository.ScheduleConfig{
		Timezone:    "America/New_York",
		Weekly:      schedule.WeeklySchedule{1: {"19:00"}, 3: {"19:00"}}.Normalized(),
		TweetOffset: 600,
	}
	if diff := cmp.Diff(wantSchedule, cfg); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}

	doc, err := engine.Export(t.Context(), ownerID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	again, err := engine.Export(t.Context(), ownerID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if string(doc) != string(again) {
		t.Errorf("exports differ:\n%s\n%s", doc, again)
	}
}

func TestRestoreRejectionOnPostgresChangesNothing(t *testing.T) {
	store := e2e.GetStore(t, e2e.UsePostgres(t))

	const ownerID = 2
	engine := backup.NewEngine(store, generator.NewSequence("pg"))
	if _, err := engine.Restore(t.Context(), ownerID, []byte(fullBackup)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	before, err := engine.Export(t.Context(), ownerID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	bad := `{"checklist": "cleared", "setups": [{"title": "no category"}, ""], "": "Mustard-Mine Backup"}`
	_, err = engine.Restore(t.Context(), ownerID, []byte(bad))
	var verr *backup.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Restore() error = %v; want *backup.ValidationError", err)
	}
	if verr.Message != "setup 1: category is required" {
		t.Errorf("Message = %q", verr.Message)
	}

	after, err := engine.Export(t.Context(), ownerID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("rejected restore changed state (-want +got):\n%s", diff)
	}
}

func TestConcurrentRestoresAreSerialized(t *testing.T) {
	store := e2e.GetStore(t, e2e.UsePostgres(t))

	const ownerID = 3
	engine := backup.NewEngine(store, &generator.UUIDV4Generator{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := fmt.Sprintf(`{"setups": [{"category": "Art", "title": "run %d"}, {"category": "Art", "title": "run %d"}, ""], "timers": [{"id": "t%d", "title": "x"}, ""], "": "Mustard-Mine Backup"}`, i, i, i)
			_, err := engine.Restore(context.Background(), ownerID, []byte(doc))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
	}

	setups, err := repository.LoadSetups(t.Context(), store, ownerID)
	if err != nil {
		t.Fatalf("LoadSetups() error = %v", err)
	}
	if len(setups) != 2 || setups[0].Title != setups[1].Title {
		t.Errorf("setups = %+v; want both from one restore", setups)
	}
	if n := len(listTimerTitles(t, store, ownerID)); n != 1 {
		t.Errorf("timers = %d; want 1", n)
	}
}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, announce.Announcement) error { return nil }

func TestRestoreRefreshesWorkerPlan(t *testing.T) {
	store := e2e.GetStore(t, e2e.UsePostgres(t))
	rdb := e2e.UseRedis(t)

	const ownerID = 4
	nextEvents := cache.NewRedisCache(rdb)
	receiver, err := worker.NewRedisRefreshReceiver(t.Context(), rdb, "e2e")
	if err != nil {
		t.Fatalf("NewRedisRefreshReceiver() error = %v", err)
	}

	scheduler := schedule.NewScheduler()
	plans := planner.New(store, scheduler, nopAnnouncer{}, planner.WithCache(nextEvents, time.Hour))
	if err := plans.Refresh(t.Context(), ownerID); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n := len(plans.Pending(ownerID)); n != 0 {
		t.Fatalf("pending before restore = %d; want 0", n)
	}

	engine := backup.NewEngine(store, generator.NewSequence("pg"),
		backup.WithCache(nextEvents),
		backup.WithRefreshPublisher(worker.NewRedisRefreshPublisher(rdb)),
	)
	if _, err := engine.Restore(t.Context(), ownerID, []byte(fullBackup)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	for refreshed := false; !refreshed; {
		requests, err := receiver.ReceiveRefreshes(ctx)
		if err != nil {
			t.Fatalf("ReceiveRefreshes() error = %v", err)
		}
		for _, req := range requests {
			if req.OwnerID != ownerID {
				continue
			}
			if err := plans.Refresh(ctx, ownerID); err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if err := req.Ack(ctx); err != nil {
				t.Errorf("Ack() error = %v", err)
			}
			refreshed = true
		}
	}

	pending := plans.Pending(ownerID)
	if len(pending) != 1 {
		t.Fatalf("pending after restore = %d; want 1", len(pending))
	}
	a, err := announce.ParseArgs(pending[0].Args)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if a.Template != "Painting tonight!" {
		t.Errorf("Template = %q; want %q", a.Template, "Painting tonight!")
	}
	if wd := a.EventAt.In(mustLoad(t, "America/New_York")).Weekday(); wd != time.Monday && wd != time.Wednesday {
		t.Errorf("event on %v; want Monday or Wednesday", wd)
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	return loc
}
