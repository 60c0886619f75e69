package schedule

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Handle identifies one scheduled invocation. Handles are assigned from a
// monotonically increasing counter, so they also break ties between
// invocations due at the same instant.
type Handle uint64

// ActionFunc is the body of an Action. The context is the scheduler's own
// and is cancelled when the scheduler stops.
type ActionFunc func(ctx context.Context, args ...any) error

// Action is a named unit of work that can be scheduled. The pointer is the
// action's identity: Search matches on it.
type Action struct {
	Name string
	Run  ActionFunc
}

// NewAction returns an Action with the given name and body.
func NewAction(name string, run ActionFunc) *Action {
	return &Action{Name: name, Run: run}
}

// Pending describes an invocation that has neither fired nor been cancelled.
type Pending struct {
	Due    time.Time
	Handle Handle
	Args   []any
}

type entry struct {
	due       time.Time
	seq       Handle
	action    *Action
	args      []any
	cancelled bool
}

func (e *entry) before(other *entry) bool {
	if e.due.Equal(other.due) {
		return e.seq < other.seq
	}
	return e.due.Before(other.due)
}

// entryHeap is a min-heap ordered by (due, seq).
type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler runs actions at future instants on a single background pump.
//
// All methods are safe for concurrent use. Schedule never waits for the
// pump. Cancelled invocations stay in the queue, flagged, and are dropped
// when they reach its head.
type Scheduler struct {
	mu      sync.Mutex
	queue   entryHeap
	pending map[Handle]*entry
	counter Handle

	// wake holds at most one signal telling the pump that the head of the
	// queue changed.
	wake chan struct{}

	now func() time.Time
	log *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the sink for action failures.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithClock replaces the wall clock used to decide whether an entry is due.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler returns a stopped Scheduler. Entries may be scheduled before
// Start; they fire once the pump runs.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pending: make(map[Handle]*entry),
		wake:    make(chan struct{}, 1),
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the pump. It is a no-op if the pump is already running.
// The pump stops when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.pump(ctx, done)
}

// Stop halts the pump and waits for it to exit. An action that is running
// is allowed to finish; entries still queued are kept but will not fire
// unless the scheduler is started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run starts the pump and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Schedule registers action to run with args at due. A due time in the past
// fires as soon as the pump gets to it. It panics if action is nil.
func (s *Scheduler) Schedule(due time.Time, action *Action, args ...any) Handle {
	if action == nil || action.Run == nil {
		panic("schedule: nil action")
	}

	s.mu.Lock()
	s.counter++
	e := &entry{
		due:    due,
		seq:    s.counter,
		action: action,
		args:   args,
	}
	heap.Push(&s.queue, e)
	s.pending[e.seq] = e
	isHead := s.queue[0] == e
	s.mu.Unlock()

	if isHead {
		s.signal()
	}
	return e.seq
}

// Cancel prevents a pending invocation from firing. It is idempotent and has
// no effect on an invocation that has already been taken by the pump.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[h]
	if !ok {
		return
	}
	e.cancelled = true
	delete(s.pending, h)
}

// Search lists the pending invocations of action in firing order.
func (s *Scheduler) Search(action *Action) []Pending {
	s.mu.Lock()
	matches := make([]*entry, 0)
	for _, e := range s.queue {
		if e.action == action && !e.cancelled {
			matches = append(matches, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].before(matches[j])
	})

	result := make([]Pending, 0, len(matches))
	for _, e := range matches {
		result = append(result, Pending{
			Due:    e.due,
			Handle: e.seq,
			Args:   append([]any(nil), e.args...),
		})
	}
	return result
}

// Len returns the number of pending invocations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) pump(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		e, wait := s.next()
		if e != nil {
			s.invoke(ctx, e)
			continue
		}

		var expired <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			expired = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-expired:
		}
		timer.Stop()
	}
}

// next pops the head of the queue if it is due. Otherwise it returns how
// long to wait for the head, or -1 if the queue is empty.
func (s *Scheduler) next() (*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 {
		head := s.queue[0]
		if head.cancelled {
			heap.Pop(&s.queue)
			continue
		}

		wait := head.due.Sub(s.now())
		if wait > 0 {
			return nil, wait
		}

		heap.Pop(&s.queue)
		delete(s.pending, head.seq)
		return head, 0
	}
	return nil, -1
}

func (s *Scheduler) invoke(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(
				"scheduled action panicked",
				slog.String("action", e.action.Name),
				slog.Uint64("handle", uint64(e.seq)),
				slog.Any("error", fmt.Errorf("panic: %v", r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := e.action.Run(ctx, e.args...); err != nil {
		s.log.Error(
			"scheduled action failed",
			slog.String("action", e.action.Name),
			slog.Uint64("handle", uint64(e.seq)),
			slog.Time("due", e.due),
			slog.Any("error", err),
		)
	}
}
