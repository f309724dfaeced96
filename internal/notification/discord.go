// Package notification delivers operator alerts over Discord. Alerts are
// best-effort: a failed delivery is logged and dropped.
package notification

import (
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"sentinel/pkg/logger"
)

type DiscordAlerter struct {
	session   *discordgo.Session
	channelID string
	logger    *logger.Logger
}

// NewDiscordAlerter reads DISCORD_TOKEN and DISCORD_CHANNEL_ID from the
// environment. It returns an error when the token is unset; callers treat
// that as alerts-disabled, not fatal.
func NewDiscordAlerter() (*DiscordAlerter, error) {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN environment variable not set")
	}
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if channelID == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID environment variable not set")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	if err := session.Open(); err != nil {
		return nil, err
	}

	return &DiscordAlerter{
		session:   session,
		channelID: channelID,
		logger:    logger.NewLogger(logrus.InfoLevel),
	}, nil
}

// Alert posts an embed to the operations channel.
func (a *DiscordAlerter) Alert(title, message string, fields map[string]string) {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       0xFF0000,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for name, value := range fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  value,
			Inline: true,
		})
	}

	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		a.logger.Error("Failed to send Discord alert", logger.Fields{"title": title, "error": err})
	}
}

func (a *DiscordAlerter) Close() {
	if err := a.session.Close(); err != nil {
		a.logger.Error("Failed to close Discord session", logger.Fields{"error": err})
	}
}
