package schedule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/mustard/internal/schedule"
	"github.com/google/go-cmp/cmp"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorder collects the first argument of every invocation in firing order.
type recorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 64)}
}

func (r *recorder) action(name string) *schedule.Action {
	return schedule.NewAction(name, func(_ context.Context, args ...any) error {
		label := args[0].(string)
		r.mu.Lock()
		r.fired = append(r.fired, label)
		r.mu.Unlock()
		r.ch <- label
		return nil
	})
}

func (r *recorder) await(t *testing.T, n int) []string {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-timeout:
			t.Fatalf("timed out waiting for %d invocations, got %d", n, i)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func startScheduler(t *testing.T) *schedule.Scheduler {
	t.Helper()
	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	s.Start(t.Context())
	t.Cleanup(s.Stop)
	return s
}

func TestSchedulerFiresEqualDueTimesInInsertionOrder(t *testing.T) {
	rec := newRecorder()
	action := rec.action("record")

	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	due := time.Now().Add(20 * time.Millisecond)
	want := []string{"a", "b", "c", "d", "e"}
	for _, label := range want {
		s.Schedule(due, action, label)
	}
	s.Start(t.Context())
	t.Cleanup(s.Stop)

	got := rec.await(t, len(want))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("firing order mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerFiresInDueOrder(t *testing.T) {
	rec := newRecorder()
	action := rec.action("record")
	s := startScheduler(t)

	now := time.Now()
	s.Schedule(now.Add(90*time.Millisecond), action, "third")
	s.Schedule(now.Add(30*time.Millisecond), action, "first")
	s.Schedule(now.Add(60*time.Millisecond), action, "second")

	got := rec.await(t, 3)
	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("firing order mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerPastDueFiresImmediately(t *testing.T) {
	rec := newRecorder()
	s := startScheduler(t)

	s.Schedule(time.Now().Add(-time.Hour), rec.action("record"), "late")
	got := rec.await(t, 1)
	if diff := cmp.Diff([]string{"late"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerEarlierInsertWakesPump(t *testing.T) {
	rec := newRecorder()
	action := rec.action("record")
	s := startScheduler(t)

	s.Schedule(time.Now().Add(time.Hour), action, "later")
	// Give the pump time to start waiting on the hour-long entry.
	time.Sleep(20 * time.Millisecond)
	s.Schedule(time.Now(), action, "now")

	got := rec.await(t, 1)
	if diff := cmp.Diff([]string{"now"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if n := s.Len(); n != 1 {
		t.Errorf("Len() = %d; want 1", n)
	}
}

func TestSchedulerCancelBeforeDue(t *testing.T) {
	rec := newRecorder()
	action := rec.action("record")
	s := startScheduler(t)

	now := time.Now()
	h := s.Schedule(now.Add(30*time.Millisecond), action, "cancelled")
	s.Schedule(now.Add(60*time.Millisecond), action, "marker")
	s.Cancel(h)
	s.Cancel(h)

	got := rec.await(t, 1)
	if diff := cmp.Diff([]string{"marker"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerCancelAfterFireHasNoEffect(t *testing.T) {
	rec := newRecorder()
	action := rec.action("record")
	s := startScheduler(t)

	h := s.Schedule(time.Now(), action, "once")
	rec.await(t, 1)
	s.Cancel(h)

	if got := s.Search(action); len(got) != 0 {
		t.Errorf("Search after firing = %v; want none", got)
	}
	if n := s.Len(); n != 0 {
		t.Errorf("Len() = %d; want 0", n)
	}
}

func TestSchedulerSearch(t *testing.T) {
	noop := func(context.Context, ...any) error { return nil }
	tweet := schedule.NewAction("tweet", noop)
	other := schedule.NewAction("tweet", noop)

	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	late := s.Schedule(base.Add(time.Hour), tweet, "late")
	early := s.Schedule(base, tweet, "early")
	tie := s.Schedule(base, tweet, "tie")
	dropped := s.Schedule(base.Add(time.Minute), tweet, "dropped")
	s.Schedule(base, other, "other")
	s.Cancel(dropped)

	want := []schedule.Pending{
		{Due: base, Handle: early, Args: []any{"early"}},
		{Due: base, Handle: tie, Args: []any{"tie"}},
		{Due: base.Add(time.Hour), Handle: late, Args: []any{"late"}},
	}
	if diff := cmp.Diff(want, s.Search(tweet)); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}
	if n := s.Len(); n != 4 {
		t.Errorf("Len() = %d; want 4", n)
	}
}

func TestSchedulerSurvivesFailingActions(t *testing.T) {
	rec := newRecorder()
	s := startScheduler(t)

	failing := schedule.NewAction("failing", func(context.Context, ...any) error {
		return errors.New("boom")
	})
	panicking := schedule.NewAction("panicking", func(context.Context, ...any) error {
		panic("kaboom")
	})

	now := time.Now()
	s.Schedule(now, failing)
	s.Schedule(now, panicking)
	s.Schedule(now.Add(10*time.Millisecond), rec.action("record"), "still alive")

	got := rec.await(t, 1)
	if diff := cmp.Diff([]string{"still alive"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerConcurrentSchedule(t *testing.T) {
	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	const total = 200

	action := schedule.NewAction("count", func(context.Context, ...any) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count == total {
			close(done)
		}
		return nil
	})
	s := startScheduler(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < total/10; j++ {
				h := s.Schedule(time.Now().Add(time.Millisecond), action)
				_ = s.Search(action)
				s.Cancel(h + 1_000_000)
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("only %d of %d actions fired", count, total)
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := schedule.NewScheduler(schedule.WithLogger(quietLogger))
	s.Stop()
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
