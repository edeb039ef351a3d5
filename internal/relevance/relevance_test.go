package relevance

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/news"
)

var taipei = time.FixedZone("CST", 8*3600)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRules() Rules {
	r := DefaultRules()
	r.Keywords = Keywords{
		MustKeep:           []string{"TSMC"},
		LocaleInterest:     []string{"semiconductor", "startup"},
		GlobalFocus:        []string{"apple", "nvidia"},
		InternationalTerms: []string{"global", "international"},
		HomeLocaleTerms:    []string{"taiwan", "asia"},
		Practical:          []string{"how to", "guide"},
	}
	return r
}

func localSource() news.Source {
	return news.Source{ID: "technews", URL: "https://example.com/a", Label: "Tech News", Region: news.RegionLocal, MaxItems: 3, BaseScore: 2,
		PriorityKeywords: []string{"ai"}, ExcludeKeywords: []string{"sponsored", "giveaway"}}
}

func intlSource() news.Source {
	return news.Source{ID: "hackernews", URL: "https://example.com/b", Region: news.RegionInternational, MaxItems: 2, BaseScore: 1}
}

func at(date string, hour int) *time.Time {
	d, _ := time.ParseInLocation(news.DateLayout, date, taipei)
	t := d.Add(time.Duration(hour) * time.Hour)
	return &t
}

func TestScore_MustKeepShortCircuits(t *testing.T) {
	s := NewScorer(testRules())
	item := news.RawItem{Title: "tsmc sponsored giveaway", Content: strings.Repeat("x", 900)}
	if got := s.Score(item, localSource()); got != 100 {
		t.Fatalf("must-keep score = %d, want 100", got)
	}
}

func TestScore_IsPure(t *testing.T) {
	s := NewScorer(testRules())
	item := news.RawItem{Title: "AI guide for Asia", Content: "a semiconductor startup in taiwan"}
	first := s.Score(item, intlSource())
	for i := 0; i < 5; i++ {
		if got := s.Score(item, intlSource()); got != first {
			t.Fatalf("call %d returned %d, first returned %d", i, got, first)
		}
	}
}

func TestScore_Rules(t *testing.T) {
	s := NewScorer(testRules())
	tests := []struct {
		name string
		item news.RawItem
		src  news.Source
		want int
	}{
		{"base plus local source", news.RawItem{Title: "update"}, localSource(), 2 + 5},
		{"exclude penalty per keyword", news.RawItem{Title: "sponsored giveaway"}, localSource(), 2 - 10 + 5},
		{"priority in title", news.RawItem{Title: "New AI chip"}, localSource(), 2 + 10 + 5},
		{"priority in body only", news.RawItem{Title: "chip", Content: "built for ai"}, localSource(), 2 + 5 + 5},
		{"locale interest per entry", news.RawItem{Title: "semiconductor startup"}, intlSource(), 1 + 4 + 4},
		{"global focus", news.RawItem{Title: "Nvidia earnings"}, intlSource(), 1 + 6},
		{"international mentions home locale once", news.RawItem{Title: "Taiwan and Asia"}, intlSource(), 1 + 10},
		{"practical only in title", news.RawItem{Title: "plain", Content: "how to do it"}, intlSource(), 1},
		{"practical in title", news.RawItem{Title: "A guide: how to ship"}, intlSource(), 1 + 7 + 7},
		{"length thresholds", news.RawItem{Title: "plain", Content: strings.Repeat("字", 600)}, intlSource(), 1 + 2 + 2},
		{"length below first threshold", news.RawItem{Title: "plain", Content: strings.Repeat("字", 300)}, intlSource(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(tt.item, tt.src); got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_LocalCrossBonusOncePerCategory(t *testing.T) {
	s := NewScorer(testRules())
	one := news.RawItem{Title: "global launch"}
	many := news.RawItem{Title: "global international launch", Content: "global global"}
	a, b := s.Score(one, localSource()), s.Score(many, localSource())
	if a != b {
		t.Fatalf("cross bonus depends on match count: %d vs %d", a, b)
	}
	if want := 2 + 5 + 8; a != want {
		t.Fatalf("score = %d, want %d", a, want)
	}
}

func TestSelect_ScenarioMustKeepWithFailedSource(t *testing.T) {
	sources := []news.Source{localSource(), intlSource()}
	sources[0].MaxItems = 5
	var items []news.RawItem
	for i := 0; i < 5; i++ {
		items = append(items, news.RawItem{
			Title: fmt.Sprintf("TSMC update %d", i), Link: fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: at("2025-03-01", 9+i), SourceID: "technews",
		})
	}
	sel, err := NewSelector(testRules(), sources, taipei, quietLogger()).Select(items, "2025-03-01")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Items) != 5 {
		t.Fatalf("kept %d items, want 5", len(sel.Items))
	}
	for i, it := range sel.Items {
		if it.Score != 100 {
			t.Errorf("item %d score = %d, want 100", i, it.Score)
		}
		if want := fmt.Sprintf("TSMC update %d", i); it.Title != want {
			t.Errorf("item %d = %q, want %q", i, it.Title, want)
		}
	}
}

func TestSelect_RespectsMaxItemsAndDropsNonPositive(t *testing.T) {
	sources := []news.Source{localSource(), intlSource()}
	var items []news.RawItem
	for i := 0; i < 6; i++ {
		items = append(items, news.RawItem{Title: fmt.Sprintf("local %d", i), PublishedAt: at("2025-03-01", 10), SourceID: "technews"})
		items = append(items, news.RawItem{Title: fmt.Sprintf("intl %d", i), PublishedAt: at("2025-03-01", 10), SourceID: "hackernews"})
	}
	items = append(items, news.RawItem{Title: "sponsored giveaway ad", PublishedAt: at("2025-03-01", 10), SourceID: "technews"})

	sel, err := NewSelector(testRules(), sources, taipei, quietLogger()).Select(items, "2025-03-01")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	counts := map[string]int{}
	for _, it := range sel.Items {
		counts[it.SourceID]++
		if it.Score <= 0 {
			t.Errorf("non-positive item kept: %+v", it)
		}
	}
	for _, src := range sources {
		if counts[src.ID] > src.MaxItems {
			t.Errorf("source %s kept %d items, max %d", src.ID, counts[src.ID], src.MaxItems)
		}
	}
}

func TestSelect_DiscardsOffDateAndUndated(t *testing.T) {
	sources := []news.Source{intlSource()}
	items := []news.RawItem{
		{Title: "today", PublishedAt: at("2025-03-01", 1), SourceID: "hackernews"},
		{Title: "yesterday", PublishedAt: at("2025-02-28", 23), SourceID: "hackernews"},
		{Title: "undated", SourceID: "hackernews"},
	}
	sel, err := NewSelector(testRules(), sources, taipei, quietLogger()).Select(items, "2025-03-01")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Items) != 1 || sel.Items[0].Title != "today" {
		t.Fatalf("unexpected selection: %+v", sel.Items)
	}
	if sel.OffDate != 2 {
		t.Errorf("OffDate = %d, want 2", sel.OffDate)
	}
}

func TestSelect_UsesDigestTimezone(t *testing.T) {
	// 2025-02-28 17:00 UTC is 2025-03-01 01:00 in Taipei.
	utc := time.Date(2025, 2, 28, 17, 0, 0, 0, time.UTC)
	items := []news.RawItem{{Title: "late", PublishedAt: &utc, SourceID: "hackernews"}}
	sel, err := NewSelector(testRules(), []news.Source{intlSource()}, taipei, quietLogger()).Select(items, "2025-03-01")
	if err != nil || len(sel.Items) != 1 {
		t.Fatalf("expected item on local date, got %v, %v", sel.Items, err)
	}
}

func TestSelect_EmptySelection(t *testing.T) {
	items := []news.RawItem{{Title: "old", PublishedAt: at("2024-01-01", 1), SourceID: "hackernews"}}
	_, err := NewSelector(testRules(), []news.Source{intlSource()}, taipei, quietLogger()).Select(items, "2025-03-01")
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
}

func TestInterleave(t *testing.T) {
	mk := func(titles ...string) []news.ScoredItem {
		var out []news.ScoredItem
		for _, s := range titles {
			out = append(out, news.ScoredItem{RawItem: news.RawItem{Title: s}})
		}
		return out
	}
	got := Interleave(mk("l1", "l2", "l3"), mk("o1"))
	want := []string{"l1", "o1", "l2", "l3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Title != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].Title, want[i])
		}
	}
}

func TestSelect_TierOrderingKeepsInterleaveForTies(t *testing.T) {
	sources := []news.Source{localSource(), intlSource()}
	sources[0].MaxItems = 5
	sources[1].MaxItems = 5
	items := []news.RawItem{
		// local: 2 + 5 = 7
		{Title: "local update", PublishedAt: at("2025-03-01", 1), SourceID: "technews"},
		// local: 2 + 10 + 5 = 17
		{Title: "local ai", PublishedAt: at("2025-03-01", 2), SourceID: "technews"},
		// intl: 1 + 6 = 7
		{Title: "intl nvidia", PublishedAt: at("2025-03-01", 3), SourceID: "hackernews"},
		// intl: 1 + 10 + 6 + 6 = 23
		{Title: "intl taiwan apple nvidia", PublishedAt: at("2025-03-01", 4), SourceID: "hackernews"},
	}
	sel, err := NewSelector(testRules(), sources, taipei, quietLogger()).Select(items, "2025-03-01")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := []string{"intl taiwan apple nvidia", "local ai", "local update", "intl nvidia"}
	for i, w := range want {
		if sel.Items[i].Title != w {
			t.Errorf("position %d = %q (score %d), want %q", i, sel.Items[i].Title, sel.Items[i].Score, w)
		}
	}
}

func TestSelect_IndependentOfSourceArrivalOrder(t *testing.T) {
	sources := []news.Source{localSource(), intlSource()}
	a := []news.RawItem{
		{Title: "local one", PublishedAt: at("2025-03-01", 1), SourceID: "technews"},
		{Title: "local two", PublishedAt: at("2025-03-01", 2), SourceID: "technews"},
	}
	b := []news.RawItem{
		{Title: "intl one", PublishedAt: at("2025-03-01", 1), SourceID: "hackernews"},
		{Title: "intl two", PublishedAt: at("2025-03-01", 2), SourceID: "hackernews"},
	}
	sel := NewSelector(testRules(), sources, taipei, quietLogger())
	first, err := sel.Select(append(append([]news.RawItem{}, a...), b...), "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	second, err := sel.Select(append(append([]news.RawItem{}, b...), a...), "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Items {
		if first.Items[i].Title != second.Items[i].Title {
			t.Fatalf("position %d differs: %q vs %q", i, first.Items[i].Title, second.Items[i].Title)
		}
	}
}
