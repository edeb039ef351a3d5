// Package notify delivers failure alerts. Delivery is best effort: a
// failed alert is logged and reported as false, never returned as error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/deusflow/technews/internal/logger"
)

// Timeout bounds one delivery.
const Timeout = 10 * time.Second

const timeLayout = "2006-01-02 15:04:05"

// Alert describes a fatal pipeline failure.
type Alert struct {
	Step    string
	Summary string
	Time    time.Time
}

// Notifier delivers an alert and reports whether it arrived.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) bool
}

// Multi fans an alert out to every notifier.
type Multi struct {
	notifiers []Notifier
	log       *slog.Logger
}

// NewMulti combines notifiers; nil entries are skipped.
func NewMulti(log *slog.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{log: logger.OrDefault(log)}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of channels.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify tries every channel and reports true if any delivered.
func (m *Multi) Notify(ctx context.Context, a Alert) bool {
	if len(m.notifiers) == 0 {
		m.log.Warn("⚠️ no notification channel configured", "step", a.Step)
		return false
	}
	delivered := false
	for _, n := range m.notifiers {
		if n.Notify(ctx, a) {
			m.log.Info("📣 alert delivered", "channel", n.Name(), "step", a.Step)
			delivered = true
		} else {
			m.log.Warn("⚠️ alert not delivered", "channel", n.Name(), "step", a.Step)
		}
	}
	return delivered
}

// postJSON sends payload and treats any non-2xx status as failure.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: Timeout}
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
