package news

import (
	"fmt"
	"time"
)

// Region is the locale class of a source.
type Region string

const (
	RegionLocal         Region = "local"
	RegionInternational Region = "international"
	RegionSpecialist    Region = "specialist"
)

// IsLocal reports whether the region belongs to the home-locale class.
func (r Region) IsLocal() bool {
	return r == RegionLocal
}

// Valid reports whether r is one of the known regions.
func (r Region) Valid() bool {
	switch r {
	case RegionLocal, RegionInternational, RegionSpecialist:
		return true
	}
	return false
}

// Source describes one remote feed and its scoring rules.
type Source struct {
	ID               string   `yaml:"id" toml:"id"`
	URL              string   `yaml:"url" toml:"url"`
	Label            string   `yaml:"label" toml:"label"`
	Region           Region   `yaml:"region" toml:"region"`
	PriorityKeywords []string `yaml:"priority_keywords" toml:"priority_keywords"`
	ExcludeKeywords  []string `yaml:"exclude_keywords" toml:"exclude_keywords"`
	MaxItems         int      `yaml:"max_items" toml:"max_items"`
	BaseScore        int      `yaml:"base_score" toml:"base_score"`
}

// Validate checks the static fields of a source.
func (s Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if s.URL == "" {
		return fmt.Errorf("source %s: url is required", s.ID)
	}
	if !s.Region.Valid() {
		return fmt.Errorf("source %s: unknown region %q", s.ID, s.Region)
	}
	if s.MaxItems <= 0 {
		return fmt.Errorf("source %s: max_items must be positive", s.ID)
	}
	return nil
}

// RawItem is one entry as fetched from a feed.
type RawItem struct {
	Title       string
	Link        string
	Content     string
	PublishedAt *time.Time
	SourceID    string
}

// ScoredItem is a RawItem with its relevance score attached.
type ScoredItem struct {
	RawItem
	Score       int
	SourceLabel string
	Region      Region
}

// DateLayout is the calendar key format used for target dates and digests.
const DateLayout = "2006-01-02"

// Yesterday returns the calendar day before now in loc.
func Yesterday(now time.Time, loc *time.Location) string {
	return now.In(loc).AddDate(0, 0, -1).Format(DateLayout)
}

// OnDate reports whether t falls on the calendar day date in loc.
func OnDate(t time.Time, date string, loc *time.Location) bool {
	return t.In(loc).Format(DateLayout) == date
}
