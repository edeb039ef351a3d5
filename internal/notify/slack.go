package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deusflow/technews/internal/logger"
)

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
	log        *slog.Logger
}

func NewSlack(webhookURL string, client *http.Client, log *slog.Logger) *Slack {
	return &Slack{webhookURL: webhookURL, client: httpClient(client), log: logger.OrDefault(log)}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, a Alert) bool {
	header := "❌ TechNews 生成失敗"
	payload := map[string]any{
		"text": fmt.Sprintf("%s\n步驟: %s\n錯誤: %s", header, a.Step, a.Summary),
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": header, "emoji": true},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": "*步驟:*\n" + a.Step},
					map[string]any{"type": "mrkdwn", "text": "*時間:*\n" + a.Time.Format(timeLayout)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*錯誤訊息:*\n```" + clip(a.Summary, 1500) + "```"},
			},
		},
	}

	if err := postJSON(ctx, s.client, s.webhookURL, nil, payload); err != nil {
		s.log.Warn("slack notification failed", "error", err)
		return false
	}
	return true
}
