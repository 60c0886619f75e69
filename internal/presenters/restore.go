package presenters

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glizzus/mustard/internal/backup"
)

// RenderRestoreReport describes the outcome of a restore as a bulleted list.
// summary and err are the results of backup.Engine.Restore.
func RenderRestoreReport(summary []string, err error) string {
	var b strings.Builder

	var verr *backup.ValidationError
	switch {
	case err == nil:
		b.WriteString("Backup restored.\n")
		for _, line := range summary {
			fmt.Fprintf(&b, "  ✓ %s\n", line)
		}
		if len(summary) == 0 {
			b.WriteString("  (the backup contained nothing to restore)\n")
		}
	case errors.As(err, &verr):
		b.WriteString("Backup rejected, nothing was changed.\n")
		for _, line := range verr.Summary {
			fmt.Fprintf(&b, "  ↺ %s (undone)\n", line)
		}
		fmt.Fprintf(&b, "  ✗ %s\n", verr.Message)
	default:
		b.WriteString("Backup could not be restored because of a server error; nothing was changed.\n")
	}
	return b.String()
}

// RenderOccurrences lists broadcast instants in loc, one per line.
func RenderOccurrences(times []time.Time, loc *time.Location) string {
	if len(times) == 0 {
		return "No broadcasts scheduled.\n"
	}
	var b strings.Builder
	for _, t := range times {
		fmt.Fprintf(&b, "  • %s\n", t.In(loc).Format("Mon 2006-01-02 15:04 MST"))
	}
	return b.String()
}
