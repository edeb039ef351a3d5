package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/deusflow/technews/internal/logger"
)

// Discord executes a channel webhook.
type Discord struct {
	session *discordgo.Session
	id      string
	token   string
	log     *slog.Logger
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscord(webhookURL string, log *slog.Logger) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Client.Timeout = Timeout
	return &Discord{session: session, id: id, token: token, log: logger.OrDefault(log)}, nil
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid discord webhook url: missing id or token")
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, a Alert) bool {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "❌ TechNews 生成失敗",
			Color:       0xE74C3C,
			Description: "```" + clip(a.Summary, 3500) + "```",
			Fields: []*discordgo.MessageEmbedField{
				{Name: "步驟", Value: a.Step, Inline: true},
				{Name: "時間", Value: a.Time.Format(timeLayout), Inline: true},
			},
		}},
	}

	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		d.log.Warn("discord notification failed", "error", err)
		return false
	}
	return true
}
