// Package cache holds resolved next-broadcast instants so that hot paths
// (overlays, the worker's planner, the CLI) do not re-read the schedule on
// every call. Entries are keyed by owner and resolver offset, and every
// entry of an owner is dropped together when that owner's schedule changes.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
)

type NextEventCache interface {
	// Get returns the cached instant, in Unix seconds, and whether there
	// was one.
	Get(ctx context.Context, ownerID, offsetSeconds int64) (int64, bool, error)
	Set(ctx context.Context, ownerID, offsetSeconds, epoch int64, ttl time.Duration) error
	// Invalidate drops every entry of ownerID.
	Invalidate(ctx context.Context, ownerID int64) error
}

// Resolve returns the owner's next broadcast as computed by
// schedule.NextOccurrence, reading through c. A nil c disables caching.
// Cache failures are logged and otherwise ignored.
func Resolve(ctx context.Context, c NextEventCache, store repository.Store, ownerID, offsetSeconds int64, ttl time.Duration) (int64, error) {
	return resolveAt(ctx, time.Now(), c, store, ownerID, offsetSeconds, ttl)
}

func resolveAt(ctx context.Context, now time.Time, c NextEventCache, store repository.Store, ownerID, offsetSeconds int64, ttl time.Duration) (int64, error) {
	ref := now.Truncate(time.Minute).Unix() - offsetSeconds

	if c != nil {
		epoch, ok, err := c.Get(ctx, ownerID, offsetSeconds)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "failed to read next event cache", "ownerID", ownerID, "error", err)
		// A cached slot stays next until the reference instant reaches it.
		// Zero means an empty schedule, which only a write can change.
		case ok && (epoch == 0 || epoch > ref):
			return epoch, nil
		}
	}

	cfg, err := repository.LoadSchedule(ctx, store, ownerID)
	if err != nil {
		return 0, err
	}
	epoch, err := schedule.NextOccurrenceAt(now, cfg.Timezone, cfg.Weekly, offsetSeconds)
	if err != nil {
		return 0, err
	}

	if c != nil {
		if err := c.Set(ctx, ownerID, offsetSeconds, epoch, ttl); err != nil {
			slog.WarnContext(ctx, "failed to write next event cache", "ownerID", ownerID, "error", err)
		}
	}
	return epoch, nil
}
