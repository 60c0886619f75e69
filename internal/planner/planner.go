// Package planner keeps exactly one pending announcement per owner on the
// scheduler, matching the owner's next broadcast.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glizzus/mustard/internal/announce"
	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
)

// Scheduler is the part of *schedule.Scheduler the planner drives.
type Scheduler interface {
	Schedule(due time.Time, action *schedule.Action, args ...any) schedule.Handle
	Cancel(h schedule.Handle)
	Search(action *schedule.Action) []schedule.Pending
}

var _ Scheduler = (*schedule.Scheduler)(nil)

type Planner struct {
	store     repository.Store
	scheduler Scheduler
	announcer announce.Announcer
	action    *schedule.Action
	cache     cache.NextEventCache
	cacheTTL  time.Duration
	log       *slog.Logger

	mu sync.Mutex
	// announced holds the last event, in Unix seconds, announced per owner.
	announced map[int64]int64
}

type Option func(*Planner)

func WithCache(c cache.NextEventCache, ttl time.Duration) Option {
	return func(p *Planner) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.log = logger
		}
	}
}

// New returns a planner that posts through announcer. Once an announcement
// is posted the owner's following broadcast is planned.
func New(store repository.Store, scheduler Scheduler, announcer announce.Announcer, opts ...Option) *Planner {
	p := &Planner{
		store:     store,
		scheduler: scheduler,
		announcer: announcer,
		log:       slog.Default(),
		announced: make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.action = announce.NewAction(announcerFunc(p.announceAndReplan))
	return p
}

// Action is the scheduler action the planner schedules.
func (p *Planner) Action() *schedule.Action {
	return p.action
}

type announcerFunc func(ctx context.Context, a announce.Announcement) error

func (f announcerFunc) Announce(ctx context.Context, a announce.Announcement) error {
	return f(ctx, a)
}

func (p *Planner) announceAndReplan(ctx context.Context, a announce.Announcement) error {
	err := p.announcer.Announce(ctx, a)

	// A failed post is not retried, so the event counts as announced either way.
	p.mu.Lock()
	if a.EventAt.Unix() > p.announced[a.OwnerID] {
		p.announced[a.OwnerID] = a.EventAt.Unix()
	}
	p.mu.Unlock()

	if refreshErr := p.Refresh(ctx, a.OwnerID); refreshErr != nil {
		p.log.ErrorContext(ctx, "Failed to plan next announcement", "ownerID", a.OwnerID, "error", refreshErr)
	}
	return err
}

func (p *Planner) lastAnnounced(ownerID int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.announced[ownerID]
}

// Refresh replaces the owner's pending announcement with one for the next
// broadcast. An owner with an empty schedule ends up with none.
func (p *Planner) Refresh(ctx context.Context, ownerID int64) error {
	cfg, err := repository.LoadSchedule(ctx, p.store, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load schedule for owner %d: %w", ownerID, err)
	}

	// The announcement for an event is still pending while now is before
	// event - tweetOffset, so the resolver looks that far ahead.
	offset := -int64(cfg.TweetOffset)
	eventEpoch, err := cache.Resolve(ctx, p.cache, p.store, ownerID, offset, p.cacheTTL)
	if err != nil {
		return fmt.Errorf("failed to resolve next broadcast for owner %d: %w", ownerID, err)
	}
	if last := p.lastAnnounced(ownerID); eventEpoch != 0 && eventEpoch <= last {
		eventEpoch, err = schedule.NextOccurrenceAt(time.Unix(last, 0), cfg.Timezone, cfg.Weekly, 0)
		if err != nil {
			return fmt.Errorf("failed to resolve broadcast after %d for owner %d: %w", last, ownerID, err)
		}
	}

	p.cancelPending(ownerID)
	if eventEpoch == 0 {
		p.log.InfoContext(ctx, "No broadcast to announce", "ownerID", ownerID)
		return nil
	}

	template, err := p.template(ctx, ownerID)
	if err != nil {
		return err
	}

	eventAt := time.Unix(eventEpoch, 0).UTC()
	due := eventAt.Add(-time.Duration(cfg.TweetOffset) * time.Second)
	handle := p.scheduler.Schedule(due, p.action, announce.Args(announce.Announcement{
		OwnerID:  ownerID,
		Template: template,
		EventAt:  eventAt,
	})...)

	p.log.InfoContext(ctx, "Planned announcement",
		"ownerID", ownerID,
		"handle", uint64(handle),
		"due", due,
		"eventAt", eventAt,
	)
	return nil
}

// RefreshAll refreshes every known owner. It keeps going past failures and
// returns the first one.
func (p *Planner) RefreshAll(ctx context.Context) error {
	owners, err := p.store.Owners(ctx)
	if err != nil {
		return fmt.Errorf("failed to list owners: %w", err)
	}

	var first error
	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Refresh(ctx, ownerID); err != nil {
			p.log.ErrorContext(ctx, "Failed to refresh owner", "ownerID", ownerID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Pending returns the owner's pending announcements in firing order.
func (p *Planner) Pending(ownerID int64) []schedule.Pending {
	var out []schedule.Pending
	for _, pending := range p.scheduler.Search(p.action) {
		a, err := announce.ParseArgs(pending.Args)
		if err == nil && a.OwnerID == ownerID {
			out = append(out, pending)
		}
	}
	return out
}

func (p *Planner) cancelPending(ownerID int64) {
	for _, pending := range p.Pending(ownerID) {
		p.scheduler.Cancel(pending.Handle)
	}
}

// template picks the announcement text from the owner's first setup that
// has one.
func (p *Planner) template(ctx context.Context, ownerID int64) (string, error) {
	setups, err := repository.LoadSetups(ctx, p.store, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to load setups for owner %d: %w", ownerID, err)
	}
	for _, s := range setups {
		if s.Tweet != "" {
			return s.Tweet, nil
		}
	}
	return "", nil
}
