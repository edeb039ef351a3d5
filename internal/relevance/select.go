package relevance

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/news"
)

// ErrEmptySelection means items arrived but none survived filtering.
var ErrEmptySelection = errors.New("no items survived relevance filtering")

// SourceReport summarizes selection for one source.
type SourceReport struct {
	SourceID string
	Label    string
	OnDate   int
	Kept     int
}

// Selection is the ordered filtered set plus its bookkeeping.
type Selection struct {
	Items       []news.ScoredItem
	Sources     []SourceReport
	LocalCount  int
	OtherCount  int
	OffDate     int
	UnknownFeed int
}

// Selector filters, balances, and orders scored items.
type Selector struct {
	scorer  *Scorer
	sources []news.Source
	tiers   []int
	loc     *time.Location
	log     *slog.Logger
}

// NewSelector builds a selector over the configured sources. The source
// order is the group order used for interleaving.
func NewSelector(rules Rules, sources []news.Source, loc *time.Location, log *slog.Logger) *Selector {
	tiers := rules.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Selector{
		scorer:  NewScorer(rules),
		sources: sources,
		tiers:   tiers,
		loc:     loc,
		log:     logger.OrDefault(log),
	}
}

// Scorer exposes the underlying scorer.
func (s *Selector) Scorer() *Scorer { return s.scorer }

// Select keeps the items published on date and returns them in final order.
// The result never depends on the order of items beyond the per-source
// fetch position, which only breaks exact ties inside a source.
func (s *Selector) Select(items []news.RawItem, date string) (Selection, error) {
	var sel Selection

	index := make(map[string]int, len(s.sources))
	for i, src := range s.sources {
		index[src.ID] = i
	}
	groups := make([][]news.ScoredItem, len(s.sources))

	for _, item := range items {
		i, ok := index[item.SourceID]
		if !ok {
			sel.UnknownFeed++
			continue
		}
		if item.PublishedAt == nil || !news.OnDate(*item.PublishedAt, date, s.loc) {
			sel.OffDate++
			continue
		}
		src := s.sources[i]
		groups[i] = append(groups[i], news.ScoredItem{
			RawItem:     item,
			Score:       s.scorer.Score(item, src),
			SourceLabel: labelOf(src),
			Region:      src.Region,
		})
	}

	var local, other []news.ScoredItem
	for i, src := range s.sources {
		group := groups[i]
		onDate := len(group)

		sort.SliceStable(group, func(a, b int) bool {
			return group[a].Score > group[b].Score
		})
		if len(group) > src.MaxItems {
			group = group[:src.MaxItems]
		}
		kept := group[:0:0]
		for _, it := range group {
			if it.Score > 0 {
				kept = append(kept, it)
			}
		}

		if src.Region.IsLocal() {
			local = append(local, kept...)
		} else {
			other = append(other, kept...)
		}

		sel.Sources = append(sel.Sources, SourceReport{SourceID: src.ID, Label: labelOf(src), OnDate: onDate, Kept: len(kept)})
		s.log.Info("source filtered", "source", src.ID, "on_date", onDate, "kept", len(kept))
	}

	sel.LocalCount = len(local)
	sel.OtherCount = len(other)
	sel.Items = s.order(Interleave(local, other))

	s.log.Info("✅ selection finished",
		"date", date,
		"kept", len(sel.Items),
		"local", sel.LocalCount,
		"other", sel.OtherCount,
		"off_date", sel.OffDate)

	if len(sel.Items) == 0 {
		return sel, ErrEmptySelection
	}
	return sel, nil
}

// Interleave alternates local and other items, continuing with the longer
// list once the shorter one is exhausted.
func Interleave(local, other []news.ScoredItem) []news.ScoredItem {
	out := make([]news.ScoredItem, 0, len(local)+len(other))
	for i := 0; i < len(local) || i < len(other); i++ {
		if i < len(local) {
			out = append(out, local[i])
		}
		if i < len(other) {
			out = append(out, other[i])
		}
	}
	return out
}

// order buckets items by score tier and sorts by score inside each tier.
// The sort is stable, so the interleaved order breaks ties.
func (s *Selector) order(items []news.ScoredItem) []news.ScoredItem {
	sort.SliceStable(items, func(a, b int) bool {
		ta, tb := s.tier(items[a].Score), s.tier(items[b].Score)
		if ta != tb {
			return ta < tb
		}
		return items[a].Score > items[b].Score
	})
	return items
}

// tier returns the bucket index of score; lower is better.
func (s *Selector) tier(score int) int {
	for i, bound := range s.tiers {
		if score > bound {
			return i
		}
	}
	return len(s.tiers)
}

func labelOf(src news.Source) string {
	if src.Label != "" {
		return src.Label
	}
	return src.ID
}
