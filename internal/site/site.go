// Package site writes the dated report pages and builds the RSS feed that
// points at them.
package site

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/feeds"

	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/fsutil"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/news"
)

// MaxFeedItems caps the RSS feed length.
const MaxFeedItems = 20

const (
	feedTitle       = "TechNews 科技日報"
	feedDescription = "每日精選 AI 與科技新聞"
)

var pageName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.html$`)

// Page is one dated report page on disk.
type Page struct {
	Date        string
	Path        string
	URL         string
	Title       string
	Description string
}

// Site manages the page directory.
type Site struct {
	dir        string
	urlPattern string
	loc        *time.Location
	log        *slog.Logger
}

// New creates a site rooted at dir. urlPattern contains {date}.
func New(dir, urlPattern string, loc *time.Location, log *slog.Logger) *Site {
	if loc == nil {
		loc = time.UTC
	}
	return &Site{dir: dir, urlPattern: urlPattern, loc: loc, log: logger.OrDefault(log)}
}

// PagePath returns the file path for date.
func (s *Site) PagePath(date string) string {
	return filepath.Join(s.dir, date+".html")
}

// PageURL returns the public URL for date.
func (s *Site) PageURL(date string) string {
	return digest.PublicURL(s.urlPattern, date)
}

func (s *Site) stagedPath(date string) string {
	return filepath.Join(s.dir, "."+date+".html.staged")
}

// StagePage writes the page for date under a hidden name. It is not
// listed or served until CommitPage.
func (s *Site) StagePage(date, html string) error {
	if err := fsutil.WriteFileAtomic(s.stagedPath(date), []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to stage page %s: %w", date, err)
	}
	return nil
}

// CommitPage replaces the public page for date with the staged one.
func (s *Site) CommitPage(date string) error {
	if err := os.Rename(s.stagedPath(date), s.PagePath(date)); err != nil {
		return fmt.Errorf("failed to commit page %s: %w", date, err)
	}
	s.log.Info("📝 page written", "date", date, "path", s.PagePath(date))
	return nil
}

// DiscardPage removes a staged page, if any.
func (s *Site) DiscardPage(date string) {
	if err := os.Remove(s.stagedPath(date)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove staged page", "date", date, "error", err)
	}
}

// Pages lists dated pages, newest first, at most max (0 = all).
func (s *Site) Pages(max int) ([]Page, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pages []Page
	for _, e := range entries {
		m := pageName.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		pages = append(pages, Page{Date: m[1], Path: filepath.Join(s.dir, e.Name()), URL: s.PageURL(m[1])})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Date > pages[j].Date })
	if max > 0 && len(pages) > max {
		pages = pages[:max]
	}

	for i := range pages {
		pages[i].Title, pages[i].Description = s.describe(pages[i].Path)
	}
	return pages, nil
}

func (s *Site) describe(path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		s.log.Debug("page does not parse", "path", path, "error", err)
		return "", ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return title, strings.TrimSpace(desc)
}

// Feed builds the RSS feed. The latest digest, when given, supplies the
// description of its own date and hides pages dated after it.
func (s *Site) Feed(latest *digest.Digest, now time.Time) (*feeds.Feed, error) {
	pages, err := s.Pages(0)
	if err != nil {
		return nil, err
	}
	pages = published(pages, latest)

	items := make([]*feeds.Item, 0, len(pages))
	for _, p := range pages {
		title := p.Title
		if title == "" {
			title = feedTitle + " " + p.Date
		}
		desc := p.Description
		if latest != nil && latest.Date == p.Date && latest.SummaryText != "" {
			desc = latest.SummaryText
		}
		if desc == "" {
			desc = title
		}
		created, _ := time.ParseInLocation(news.DateLayout, p.Date, s.loc)

		items = append(items, &feeds.Item{
			Id:          p.URL,
			Title:       title,
			Link:        &feeds.Link{Href: p.URL},
			Description: desc,
			Created:     created.Add(8 * time.Hour),
		})
	}

	return &feeds.Feed{
		Title:       feedTitle,
		Link:        &feeds.Link{Href: s.baseURL()},
		Description: feedDescription,
		Author:      &feeds.Author{Name: "TechNews"},
		Created:     now.In(s.loc),
		Items:       items,
	}, nil
}

// published drops pages newer than the stored digest and caps the list.
func published(pages []Page, latest *digest.Digest) []Page {
	out := pages[:0]
	for _, p := range pages {
		if latest != nil && p.Date > latest.Date {
			continue
		}
		out = append(out, p)
		if len(out) == MaxFeedItems {
			break
		}
	}
	return out
}

// RSS renders the feed as RSS 2.0.
func (s *Site) RSS(latest *digest.Digest, now time.Time) (string, error) {
	feed, err := s.Feed(latest, now)
	if err != nil {
		return "", err
	}
	return feed.ToRss()
}

func (s *Site) baseURL() string {
	base := s.urlPattern
	if i := strings.Index(base, "{date}"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(base, "/")
}
