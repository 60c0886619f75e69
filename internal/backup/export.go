package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glizzus/mustard/internal/repository"
)

type exportedSetup struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Tags     string `json:"tags"`
	Tweet    string `json:"tweet"`
}

type exportedTimer struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Delta   int    `json:"delta"`
	MaxTime int    `json:"maxtime"`
	Styling string `json:"styling"`
}

type exportField struct {
	key   string
	value any
}

// Export renders ownerID's state as a backup document that Restore accepts.
// The output depends only on the stored state, so exporting twice without
// changes in between yields identical bytes.
func (e *Engine) Export(ctx context.Context, ownerID int64) ([]byte, error) {
	var (
		setups    []repository.Setup
		timers    []repository.Timer
		cfg       repository.ScheduleConfig
		checklist string
	)
	err := e.store.WithTx(ctx, ownerID, func(tx repository.Tx) error {
		var err error
		if setups, err = tx.ListSetups(ctx); err != nil {
			return err
		}
		if timers, err = tx.ListTimers(ctx); err != nil {
			return err
		}
		if cfg, err = tx.GetSchedule(ctx); err != nil {
			return err
		}
		checklist, err = tx.GetChecklist(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read state of owner %d: %w", ownerID, err)
	}

	setupList := make([]any, 0, len(setups)+1)
	for _, s := range setups {
		setupList = append(setupList, exportedSetup{
			Category: s.Category,
			Title:    s.Title,
			Tags:     s.Tags,
			Tweet:    s.Tweet,
		})
	}
	setupList = append(setupList, "")

	weekly := cfg.Weekly.Normalized()
	scheduleList := make([]any, 0, len(weekly)+2)
	for _, day := range weekly {
		scheduleList = append(scheduleList, day)
	}
	scheduleList = append(scheduleList, cfg.Timezone, cfg.TweetOffset)

	checklistList := make([]string, 0)
	if checklist != "" {
		checklistList = append(checklistList, strings.Split(checklist, "\n")...)
	}
	checklistList = append(checklistList, "")

	timerList := make([]any, 0, len(timers)+1)
	for _, t := range timers {
		timerList = append(timerList, exportedTimer{
			ID:      t.ID,
			Title:   t.Title,
			Delta:   t.Delta,
			MaxTime: t.MaxTime,
			Styling: t.Styling,
		})
	}
	timerList = append(timerList, "")

	return encodeOrdered([]exportField{
		{key: "setups", value: setupList},
		{key: "schedule", value: scheduleList},
		{key: "checklist", value: checklistList},
		{key: "timers", value: timerList},
		{key: signatureKey, value: Signature},
	})
}

// encodeOrdered writes a JSON object with its keys in the given order,
// which encoding/json does not offer for maps.
func encodeOrdered(fields []exportField) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range fields {
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key %q: %w", f.key, err)
		}
		var value bytes.Buffer
		enc := json.NewEncoder(&value)
		enc.SetEscapeHTML(false)
		enc.SetIndent("\t", "\t")
		if err := enc.Encode(f.value); err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", f.key, err)
		}
		buf.WriteByte('\t')
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(bytes.TrimRight(value.Bytes(), "\n"))
		if i < len(fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
