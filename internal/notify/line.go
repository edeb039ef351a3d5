package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deusflow/technews/internal/logger"
)

const linePushURL = "https://api.line.me/v2/bot/message/push"

// Line sends a push message to one user.
type Line struct {
	token    string
	userID   string
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

func NewLine(token, userID string, client *http.Client, log *slog.Logger) *Line {
	return &Line{token: token, userID: userID, endpoint: linePushURL, client: httpClient(client), log: logger.OrDefault(log)}
}

func (l *Line) Name() string { return "line" }

func (l *Line) Notify(ctx context.Context, a Alert) bool {
	text := fmt.Sprintf("❌ TechNews 生成失敗\n━━━━━━━━━━━━━━\n📍 步驟: %s\n⏰ 時間: %s\n💥 錯誤:\n%s",
		a.Step, a.Time.Format(timeLayout), clip(a.Summary, 800))

	payload := map[string]any{
		"to":       l.userID,
		"messages": []any{map[string]any{"type": "text", "text": text}},
	}
	headers := map[string]string{"Authorization": "Bearer " + l.token}

	if err := postJSON(ctx, l.client, l.endpoint, headers, payload); err != nil {
		l.log.Warn("line notification failed", "error", err)
		return false
	}
	return true
}
