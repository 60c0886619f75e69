package presenters_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/mustard/internal/backup"
	"github.com/glizzus/mustard/internal/presenters"
	"github.com/google/go-cmp/cmp"
)

func TestRenderRestoreReport(t *testing.T) {
	tests := []struct {
		name    string
		summary []string
		err     error
		want    string
	}{
		{
			name:    "success",
			summary: []string{"Restored checklist", "Created timer abc"},
			want:    "Backup restored.\n  ✓ Restored checklist\n  ✓ Created timer abc\n",
		},
		{
			name: "nothing to do",
			want: "Backup restored.\n  (the backup contained nothing to restore)\n",
		},
		{
			name: "validation failure",
			err: &backup.ValidationError{
				Summary: []string{"Removed 2 old setups"},
				Message: "setup 2: category is required",
			},
			want: "Backup rejected, nothing was changed.\n" +
				"  ↺ Removed 2 old setups (undone)\n" +
				"  ✗ setup 2: category is required\n",
		},
		{
			name: "server failure",
			err:  errors.New("connection reset"),
			want: "Backup could not be restored because of a server error; nothing was changed.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := presenters.RenderRestoreReport(tt.summary, tt.err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderOccurrences(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}
	times := []time.Time{time.Date(2024, 7, 1, 23, 0, 0, 0, time.UTC)}

	want := "  • Mon 2024-07-01 19:00 EDT\n"
	if got := presenters.RenderOccurrences(times, loc); got != want {
		t.Errorf("RenderOccurrences() = %q; want %q", got, want)
	}
	if got := presenters.RenderOccurrences(nil, loc); got != "No broadcasts scheduled.\n" {
		t.Errorf("RenderOccurrences(nil) = %q", got)
	}
}

func TestAnnouncementMessage(t *testing.T) {
	eventAt := time.Date(2024, 7, 1, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		content  string
	}{
		{name: "template", template: " Painting tonight! ", content: "Painting tonight!"},
		{name: "blank template", template: "  ", content: presenters.DefaultAnnouncement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := &discordgo.MessageSend{
				Content: tt.content,
				Embeds: []*discordgo.MessageEmbed{
					{
						Title:       "Upcoming broadcast",
						Description: "Starts <t:1719874800:R> (<t:1719874800:F>)",
						Color:       0xE1AD01,
						Timestamp:   "2024-07-01T23:00:00Z",
					},
				},
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			}
			if diff := cmp.Diff(want, presenters.AnnouncementMessage(tt.template, eventAt)); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
