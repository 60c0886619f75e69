package presenters

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DefaultAnnouncement is posted for owners without an announcement template.
const DefaultAnnouncement = "Going live soon!"

const announcementColor = 0xE1AD01

// AnnouncementMessage builds the go-live post for a broadcast starting at
// eventAt. Discord renders the timestamp in each reader's own zone.
func AnnouncementMessage(template string, eventAt time.Time) *discordgo.MessageSend {
	content := strings.TrimSpace(template)
	if content == "" {
		content = DefaultAnnouncement
	}

	return &discordgo.MessageSend{
		Content: content,
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       "Upcoming broadcast",
				Description: fmt.Sprintf("Starts <t:%d:R> (<t:%d:F>)", eventAt.Unix(), eventAt.Unix()),
				Color:       announcementColor,
				Timestamp:   eventAt.UTC().Format(time.RFC3339),
			},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
}
