package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/deusflow/technews/internal/logger"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends a bot message to a chat or channel.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewTelegram(token, chatID string, client *http.Client, log *slog.Logger) *Telegram {
	return &Telegram{token: token, chatID: chatID, baseURL: telegramAPI, client: httpClient(client), log: logger.OrDefault(log)}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(ctx context.Context, a Alert) bool {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	text := fmt.Sprintf("❌ <b>TechNews 生成失敗</b>\n📍 <b>步驟:</b> %s\n⏰ %s\n\n<pre>%s</pre>",
		html.EscapeString(a.Step), a.Time.Format(timeLayout), html.EscapeString(clip(a.Summary, 3500)))

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	if err := postJSON(ctx, t.client, url, nil, payload); err != nil {
		t.log.Warn("telegram notification failed", "error", err)
		return false
	}
	return true
}
