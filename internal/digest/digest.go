// Package digest holds the single canonical daily digest. Publish replaces
// it in one write; readers get the stored record verbatim.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/technews/internal/news"
)

// ErrNotFound means no digest has been published yet.
var ErrNotFound = errors.New("digest not found")

// NotGeneratedText is the reply when no digest exists.
const NotGeneratedText = "📭 今日日報尚未生成，請稍後再試。"

// Digest is the published daily record.
type Digest struct {
	Date        string    `json:"date"`
	SummaryText string    `json:"summary_text"`
	DetailText  string    `json:"detail_text"`
	PublicURL   string    `json:"public_url"`
	Title       string    `json:"title,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Validate checks the required fields.
func (d Digest) Validate() error {
	if _, err := time.Parse(news.DateLayout, d.Date); err != nil {
		return fmt.Errorf("digest date %q: %w", d.Date, err)
	}
	if strings.TrimSpace(d.SummaryText) == "" {
		return fmt.Errorf("digest summary text is empty")
	}
	if strings.TrimSpace(d.DetailText) == "" {
		return fmt.Errorf("digest detail text is empty")
	}
	if d.PublicURL == "" {
		return fmt.Errorf("digest public url is empty")
	}
	if d.GeneratedAt.IsZero() {
		return fmt.Errorf("digest generated_at is zero")
	}
	return nil
}

// Store persists the latest digest.
type Store interface {
	// ReadLatest returns the stored digest or ErrNotFound.
	ReadLatest(ctx context.Context) (Digest, error)
	// Publish replaces the stored digest in a single write.
	Publish(ctx context.Context, d Digest) error
	Close() error
}

// PublicURL expands a pattern containing {date}.
func PublicURL(pattern, date string) string {
	return strings.ReplaceAll(pattern, "{date}", date)
}

// FormatReply renders the chat reply for d.
func FormatReply(d Digest) string {
	if d.PublicURL == "" {
		return d.SummaryText
	}
	return d.SummaryText + "\n\n🔗 完整報告: " + d.PublicURL
}

// Reply reads the latest digest and renders it. A missing digest yields
// NotGeneratedText without an error.
func Reply(ctx context.Context, s Store) (string, error) {
	d, err := s.ReadLatest(ctx)
	if errors.Is(err, ErrNotFound) {
		return NotGeneratedText, nil
	}
	if err != nil {
		return "", err
	}
	return FormatReply(d), nil
}
