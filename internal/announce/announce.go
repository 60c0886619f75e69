// Package announce posts go-live announcements when the scheduler fires.
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/mustard/internal/presenters"
	"github.com/glizzus/mustard/internal/schedule"
)

// ActionName names the scheduler action created by NewAction.
const ActionName = "announce"

// Announcement is one go-live post.
type Announcement struct {
	OwnerID  int64
	Template string
	EventAt  time.Time
}

type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Session is the part of *discordgo.Session used to post messages.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Session = (*discordgo.Session)(nil)

// DiscordAnnouncer posts announcements to a single channel.
type DiscordAnnouncer struct {
	session   Session
	channelID string
}

func NewDiscordAnnouncer(session Session, channelID string) *DiscordAnnouncer {
	return &DiscordAnnouncer{session: session, channelID: channelID}
}

var _ Announcer = (*DiscordAnnouncer)(nil)

func (d *DiscordAnnouncer) Announce(ctx context.Context, a Announcement) error {
	msg := presenters.AnnouncementMessage(a.Template, a.EventAt)
	sent, err := d.session.ChannelMessageSendComplex(d.channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send announcement for owner %d: %w", a.OwnerID, err)
	}
	slog.InfoContext(ctx, "Posted announcement",
		"ownerID", a.OwnerID,
		"channelID", d.channelID,
		"messageID", sent.ID,
		"eventAt", a.EventAt,
	)
	return nil
}

// LogAnnouncer only logs what would have been posted.
type LogAnnouncer struct {
	log *slog.Logger
}

func NewLogAnnouncer(logger *slog.Logger) *LogAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAnnouncer{log: logger}
}

var _ Announcer = (*LogAnnouncer)(nil)

func (l *LogAnnouncer) Announce(ctx context.Context, a Announcement) error {
	msg := presenters.AnnouncementMessage(a.Template, a.EventAt)
	l.log.InfoContext(ctx, "Dry run announcement",
		"ownerID", a.OwnerID,
		"eventAt", a.EventAt,
		"content", msg.Content,
	)
	return nil
}

// NewAction wraps a in a scheduler action. The action expects the arguments
// (ownerID int64, template string, eventAt time.Time).
func NewAction(a Announcer) *schedule.Action {
	return schedule.NewAction(ActionName, func(ctx context.Context, args ...any) error {
		ann, err := ParseArgs(args)
		if err != nil {
			return err
		}
		return a.Announce(ctx, ann)
	})
}

// Args builds the scheduler arguments for an announcement.
func Args(a Announcement) []any {
	return []any{a.OwnerID, a.Template, a.EventAt}
}

// ParseArgs is the inverse of Args.
func ParseArgs(args []any) (Announcement, error) {
	var a Announcement
	if len(args) != 3 {
		return a, fmt.Errorf("announce: expected 3 arguments, got %d", len(args))
	}
	var ok bool
	if a.OwnerID, ok = args[0].(int64); !ok {
		return a, fmt.Errorf("announce: owner id has type %T", args[0])
	}
	if a.Template, ok = args[1].(string); !ok {
		return a, fmt.Errorf("announce: template has type %T", args[1])
	}
	if a.EventAt, ok = args[2].(time.Time); !ok {
		return a, fmt.Errorf("announce: event time has type %T", args[2])
	}
	return a, nil
}
