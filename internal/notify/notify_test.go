package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{Step: "fetch", Summary: "no items fetched from any source", Time: time.Date(2025, 3, 2, 6, 0, 0, 0, time.UTC)}
}

func TestSlack_PostsWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	if !NewSlack(srv.URL, srv.Client(), quietLogger()).Notify(context.Background(), testAlert()) {
		t.Fatalf("expected delivery")
	}
	if text, _ := body["text"].(string); !strings.Contains(text, "fetch") {
		t.Errorf("text = %q, want step name", text)
	}
}

func TestLine_SendsBearerToken(t *testing.T) {
	var auth string
	var body struct {
		To       string `json:"to"`
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	l := NewLine("token-123", "U42", srv.Client(), quietLogger())
	l.endpoint = srv.URL
	if !l.Notify(context.Background(), testAlert()) {
		t.Fatalf("expected delivery")
	}
	if auth != "Bearer token-123" {
		t.Errorf("auth = %q", auth)
	}
	if body.To != "U42" || len(body.Messages) != 1 || !strings.Contains(body.Messages[0].Text, "2025-03-02 06:00:00") {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestTelegram_FailureReportsFalse(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tg := NewTelegram("abc", "chat", srv.Client(), quietLogger())
	tg.baseURL = srv.URL
	if tg.Notify(context.Background(), testAlert()) {
		t.Fatalf("expected failure on 403")
	}
	if path != "/botabc/sendMessage" {
		t.Errorf("path = %q", path)
	}
}

type stub struct {
	name  string
	ok    bool
	calls int
}

func (s *stub) Name() string { return s.name }
func (s *stub) Notify(ctx context.Context, a Alert) bool {
	s.calls++
	return s.ok
}

func TestMulti_DeliveredIfAnySucceeds(t *testing.T) {
	bad, good := &stub{name: "bad"}, &stub{name: "good", ok: true}
	m := NewMulti(quietLogger(), bad, nil, good)
	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
	if !m.Notify(context.Background(), testAlert()) {
		t.Fatalf("expected delivery")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Errorf("calls bad=%d good=%d", bad.calls, good.calls)
	}
	if NewMulti(quietLogger()).Notify(context.Background(), testAlert()) {
		t.Errorf("empty multi must report false")
	}
}

func TestParseWebhookURL(t *testing.T) {
	id, token, err := parseWebhookURL("https://discord.com/api/webhooks/123/abc-def")
	if err != nil || id != "123" || token != "abc-def" {
		t.Fatalf("got %q %q %v", id, token, err)
	}
	if _, _, err := parseWebhookURL("https://discord.com/api/channels/1"); err == nil {
		t.Errorf("expected error")
	}
}
