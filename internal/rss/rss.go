package rss

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/retry"
)

// MaxWorkers caps concurrent fetches regardless of configuration.
const MaxWorkers = 8

// ErrNoItems means every source failed or returned nothing.
var ErrNoItems = errors.New("no items fetched from any source")

// Settings controls the fetch step.
type Settings struct {
	Workers   int           `yaml:"workers" toml:"workers"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
	Retry     retry.Policy  `yaml:"retry" toml:"retry"`
}

// DefaultSettings returns 8 workers, 15s per attempt, 2 attempts 2s apart.
func DefaultSettings() Settings {
	return Settings{
		Workers:   MaxWorkers,
		Timeout:   15 * time.Second,
		UserAgent: "TechNews/1.0",
		Retry:     retry.Policy{MaxAttempts: 2, Delay: 2 * time.Second},
	}
}

// SourceResult is the outcome of one source.
type SourceResult struct {
	SourceID string
	Items    int
	Attempts int
	Duration time.Duration
	Err      error
}

// Result is the union of all successful sources, in source order.
type Result struct {
	Items   []news.RawItem
	Sources []SourceResult
}

// Failed returns the sources that contributed nothing because of an error.
func (r Result) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Fetcher downloads and normalizes feeds.
type Fetcher struct {
	settings Settings
	client   *http.Client
	strip    *bluemonday.Policy
	log      *slog.Logger
}

// New creates a fetcher. A nil client gets a default one.
func New(settings Settings, client *http.Client, log *slog.Logger) *Fetcher {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultSettings().Timeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		settings: settings,
		client:   client,
		strip:    bluemonday.StrictPolicy(),
		log:      logger.OrDefault(log),
	}
}

func (f *Fetcher) workers(n int) int {
	w := f.settings.Workers
	if w <= 0 || w > MaxWorkers {
		w = MaxWorkers
	}
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// FetchAll fetches every source concurrently. A failed source contributes
// zero items; only an empty union is an error.
func (f *Fetcher) FetchAll(ctx context.Context, sources []news.Source) (Result, error) {
	perSource := make([][]news.RawItem, len(sources))
	results := make([]SourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(f.workers(len(sources)))

	f.log.Info("📡 fetching sources", "count", len(sources), "workers", f.workers(len(sources)))

	for i, src := range sources {
		g.Go(func() error {
			start := time.Now()
			items, attempts, err := f.fetchSource(ctx, src)
			perSource[i] = items
			results[i] = SourceResult{
				SourceID: src.ID,
				Items:    len(items),
				Attempts: attempts,
				Duration: time.Since(start),
				Err:      err,
			}
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	res.Sources = results
	for i, items := range perSource {
		res.Items = append(res.Items, items...)
		if results[i].Err != nil {
			f.log.Warn("⚠️ source failed", "source", results[i].SourceID, "attempts", results[i].Attempts, "error", results[i].Err)
		}
	}

	f.log.Info("✅ fetch finished", "items", len(res.Items), "failed_sources", len(res.Failed()))

	if len(res.Items) == 0 {
		return res, ErrNoItems
	}
	return res, nil
}

// fetchSource runs the retry loop for one source.
func (f *Fetcher) fetchSource(ctx context.Context, src news.Source) ([]news.RawItem, int, error) {
	var items []news.RawItem
	attempts := 0

	err := retry.Do(ctx, f.settings.Retry, func(ctx context.Context, attempt int) error {
		attempts = attempt
		f.log.Debug("fetching source", "source", src.ID, "attempt", attempt)

		var err error
		items, err = f.fetchOnce(ctx, src)
		if err != nil {
			f.log.Debug("fetch attempt failed", "source", src.ID, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, attempts, err
	}

	f.log.Info("source fetched", "source", src.ID, "items", len(items), "attempt", attempts)
	return items, attempts, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, src news.Source) ([]news.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.settings.Timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = f.settings.UserAgent

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.URL, err)
	}

	items := make([]news.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, f.normalize(it, src.ID))
	}
	return items, nil
}

func (f *Fetcher) normalize(it *gofeed.Item, sourceID string) news.RawItem {
	content := it.Description
	if content == "" {
		content = it.Content
	}
	return news.RawItem{
		Title:       f.plainText(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Content:     f.plainText(content),
		PublishedAt: publishedAt(it),
		SourceID:    sourceID,
	}
}

// plainText drops markup and collapses whitespace.
func (f *Fetcher) plainText(s string) string {
	s = html.UnescapeString(f.strip.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// publishedAt prefers the parser's timestamps and falls back to a loose
// parse of the raw strings. Nil means unscheduled.
func publishedAt(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		t := *it.PublishedParsed
		return &t
	}
	if it.UpdatedParsed != nil {
		t := *it.UpdatedParsed
		return &t
	}
	for _, raw := range []string{it.Published, it.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return &t
		}
	}
	return nil
}
