// Package backup imports and exports an owner's dashboard state as a single
// JSON document.
//
// A restore runs in one transaction. Setups are replaced wholesale; timers
// are merged by id because their ids are embedded in overlay URLs; schedule,
// tweet offset and checklist are overwritten when present. A section that is
// absent from the document leaves its state alone.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glizzus/mustard/internal/cache"
	"github.com/glizzus/mustard/internal/generator"
	"github.com/glizzus/mustard/internal/repository"
)

// RefreshPublisher is told about owners whose schedule may have changed, so
// that pending announcements can be re-planned.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, ownerID int64) error
}

type Engine struct {
	store     repository.Store
	ids       generator.Generator[string]
	cache     cache.NextEventCache
	publisher RefreshPublisher
	log       *slog.Logger
}

type EngineOption func(*Engine)

// WithCache invalidates the owner's next event in c after every restore.
func WithCache(c cache.NextEventCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithRefreshPublisher announces every restored owner to p.
func WithRefreshPublisher(p RefreshPublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// NewEngine returns an Engine that stores into store and names new timers
// with ids.
func NewEngine(store repository.Store, ids generator.Generator[string], opts ...EngineOption) *Engine {
	e := &Engine{
		store: store,
		ids:   ids,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore applies doc to ownerID and returns one line per applied step.
//
// If doc is rejected, nothing is written and the error is a
// *ValidationError carrying the steps applied before the rejection. Any
// other error means the store failed; nothing is written and there is no
// summary.
func (e *Engine) Restore(ctx context.Context, ownerID int64, doc []byte) ([]string, error) {
	d, err := parseDocument(doc)
	if err != nil {
		return nil, e.rejected(ownerID, nil, err)
	}

	var run *restoreRun
	err = e.store.WithTx(ctx, ownerID, func(tx repository.Tx) error {
		run = &restoreRun{tx: tx, ids: e.ids, summary: make([]string, 0)}
		return run.apply(ctx, d)
	})

	var inv *invalidInput
	if errors.As(err, &inv) {
		return nil, e.rejected(ownerID, run.summary, inv)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore backup for owner %d: %w", ownerID, err)
	}

	e.log.InfoContext(ctx, "restored backup", "ownerID", ownerID, "steps", len(run.summary))
	e.afterCommit(ctx, ownerID)
	return run.summary, nil
}

func (e *Engine) rejected(ownerID int64, summary []string, err error) error {
	if summary == nil {
		summary = make([]string, 0)
	}
	e.log.Info("rejected backup", "ownerID", ownerID, "reason", err.Error(), "stepsRolledBack", len(summary))
	return &ValidationError{Summary: summary, Message: err.Error()}
}

func (e *Engine) afterCommit(ctx context.Context, ownerID int64) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, ownerID); err != nil {
			e.log.WarnContext(ctx, "failed to invalidate next event cache", "ownerID", ownerID, "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishRefresh(ctx, ownerID); err != nil {
			e.log.WarnContext(ctx, "failed to publish refresh", "ownerID", ownerID, "error", err)
		}
	}
}

type restoreRun struct {
	tx      repository.Tx
	ids     generator.Generator[string]
	summary []string
}

func (r *restoreRun) report(format string, args ...any) {
	r.summary = append(r.summary, fmt.Sprintf(format, args...))
}

type restoreSection struct {
	key   string
	apply func(r *restoreRun, ctx context.Context, section string, raw json.RawMessage) error
}

// Timers come before setups so that a rejected setup also undoes the timer
// merge.
var restoreSections = []restoreSection{
	{key: "schedule", apply: (*restoreRun).restoreSchedule},
	{key: "twitter_config", apply: (*restoreRun).restoreSchedule},
	{key: "checklist", apply: (*restoreRun).restoreChecklist},
	{key: "timers", apply: (*restoreRun).restoreTimers},
	{key: "setups", apply: (*restoreRun).restoreSetups},
}

var knownSections = func() map[string]bool {
	known := map[string]bool{signatureKey: true}
	for _, s := range restoreSections {
		known[s.key] = true
	}
	return known
}()

func (r *restoreRun) apply(ctx context.Context, d document) error {
	for key := range d {
		if !knownSections[key] {
			return invalidf("unknown section %q", key)
		}
	}
	for _, section := range restoreSections {
		raw, ok := d[section.key]
		if !ok {
			continue
		}
		if err := section.apply(r, ctx, section.key, raw); err != nil {
			return err
		}
	}
	return nil
}
