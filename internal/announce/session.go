package announce

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "username", r.User.Username, "userID", r.User.ID, "guilds", len(r.Guilds))
}

// NewSession creates a bot session. The caller opens and closes it.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	s.AddHandler(ReadyLog)
	return s, nil
}
