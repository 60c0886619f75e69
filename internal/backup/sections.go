package backup

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/util"
)

func (r *restoreRun) restoreSchedule(ctx context.Context, section string, raw json.RawMessage) error {
	update, _, err := decodeScheduleSection(section, raw)
	if err != nil {
		return err
	}

	if update.Weekly != nil {
		if err := r.tx.SetSchedule(ctx, *update.Timezone, *update.Weekly); err != nil {
			return err
		}
		r.report("Restored schedule")
	}
	if update.TweetOffset != nil {
		if err := r.tx.SetTweetOffset(ctx, *update.TweetOffset); err != nil {
			return err
		}
		r.report("Restored tweet offset")
	}
	return nil
}

func (r *restoreRun) restoreChecklist(ctx context.Context, section string, raw json.RawMessage) error {
	var checklist string
	switch jsonKind(raw) {
	case '"':
		if err := json.Unmarshal(raw, &checklist); err != nil {
			return invalidf("%s must be a string or a list of strings", section)
		}
		checklist = strings.TrimSpace(checklist)
	case '[':
		var lines []string
		if err := json.Unmarshal(raw, &lines); err != nil {
			return invalidf("%s must be a string or a list of strings", section)
		}
		lines = util.TrimTrailing(lines, func(s string) bool { return s == "" })
		checklist = joinLines(lines)
	default:
		return invalidf("%s must be a string or a list of strings", section)
	}

	if err := r.tx.SetChecklist(ctx, checklist); err != nil {
		return err
	}
	r.report("Restored checklist")
	return nil
}

var timerShape = recordShape{
	allowed: map[string]bool{
		"id":      true,
		"title":   true,
		"delta":   true,
		"maxtime": true,
		"styling": true,
	},
}

func decodeTimer(raw json.RawMessage) (string, repository.TimerPatch, error) {
	var patch repository.TimerPatch
	rec, err := timerShape.decode(raw)
	if err != nil {
		return "", patch, err
	}

	id, err := rec.str("id")
	if err != nil {
		return "", patch, err
	}
	if patch.Title, err = rec.str("title"); err != nil {
		return "", patch, err
	}
	if patch.Delta, err = rec.integer("delta"); err != nil {
		return "", patch, err
	}
	if patch.MaxTime, err = rec.integer("maxtime"); err != nil {
		return "", patch, err
	}
	if patch.Styling, err = rec.str("styling"); err != nil {
		return "", patch, err
	}

	if id == nil {
		return "", patch, nil
	}
	return *id, patch, nil
}

// restoreTimers merges by id. An entry whose id the owner already has
// updates that timer with the supplied fields only. Any other entry,
// including a second entry for an id already used in this pass, creates a
// timer under a fresh id. Timers the document does not mention are deleted.
func (r *restoreRun) restoreTimers(ctx context.Context, section string, raw json.RawMessage) error {
	items, err := records(section, raw)
	if err != nil {
		return err
	}

	existingIDs, err := r.tx.ListTimerIDs(ctx)
	if err != nil {
		return err
	}
	unclaimed := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		unclaimed[id] = true
	}

	for i, item := range items {
		id, patch, err := decodeTimer(item)
		if err != nil {
			return prefixInvalid(err, "timer %d", i+1)
		}

		if id != "" && unclaimed[id] {
			if err := r.tx.UpdateTimer(ctx, id, patch); err != nil {
				return err
			}
			delete(unclaimed, id)
			r.report("Updated timer %s", id)
			continue
		}

		newID, err := r.ids.Next()
		if err != nil {
			return err
		}
		if err := r.tx.InsertTimer(ctx, newID, patch); err != nil {
			return err
		}
		r.report("Created timer %s", newID)
	}

	for _, id := range existingIDs {
		if !unclaimed[id] {
			continue
		}
		if err := r.tx.DeleteTimer(ctx, id); err != nil {
			return err
		}
		r.report("Deleted timer %s", id)
	}
	return nil
}

var setupShape = recordShape{
	allowed: map[string]bool{
		"category": true,
		"title":    true,
		"tags":     true,
		"tweet":    true,
	},
	dropped: map[string]bool{
		"communities": true,
		"id":          true,
	},
}

func decodeSetup(raw json.RawMessage) (repository.Setup, error) {
	var setup repository.Setup
	rec, err := setupShape.decode(raw)
	if err != nil {
		return setup, err
	}

	if setup.Category, err = rec.requiredStr("category"); err != nil {
		return setup, err
	}
	if setup.Title, err = rec.requiredStr("title"); err != nil {
		return setup, err
	}
	tags, err := rec.str("tags")
	if err != nil {
		return setup, err
	}
	if tags != nil {
		setup.Tags = *tags
	}
	tweet, err := rec.str("tweet")
	if err != nil {
		return setup, err
	}
	if tweet != nil {
		setup.Tweet = *tweet
	}
	return setup, nil
}

func (r *restoreRun) restoreSetups(ctx context.Context, section string, raw json.RawMessage) error {
	items, err := records(section, raw)
	if err != nil {
		return err
	}

	deleted, err := r.tx.DeleteSetups(ctx)
	if err != nil {
		return err
	}
	r.report("Removed %s", plural(int(deleted), "old setup", "old setups"))

	for i, item := range items {
		setup, err := decodeSetup(item)
		if err != nil {
			return prefixInvalid(err, "setup %d", i+1)
		}
		if _, err := r.tx.InsertSetup(ctx, setup); err != nil {
			return err
		}
	}
	r.report("Restored %s", plural(len(items), "setup", "setups"))
	return nil
}
