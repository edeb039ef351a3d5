package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrBudgetExceeded is returned once a provider or the run has used up
// its allowed calls.
var ErrBudgetExceeded = errors.New("AI request budget exceeded")

// Budget counts provider calls for one run. Zero limits mean unlimited.
// A nil *Budget allows everything.
type Budget struct {
	mu       sync.Mutex
	counts   map[string]int
	limits   map[string]int
	total    int
	maxTotal int
}

// NewBudget creates a budget with a total cap and optional per-provider caps.
func NewBudget(maxTotal int, perProvider map[string]int) *Budget {
	limits := make(map[string]int, len(perProvider))
	for k, v := range perProvider {
		limits[k] = v
	}
	return &Budget{
		counts:   make(map[string]int),
		limits:   limits,
		maxTotal: maxTotal,
	}
}

// CanUse reports whether another call to provider fits the budget.
func (b *Budget) CanUse(provider string) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check(provider) == nil
}

// Use records one call, or fails without recording it.
func (b *Budget) Use(provider string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(provider); err != nil {
		return err
	}
	b.counts[provider]++
	b.total++
	return nil
}

func (b *Budget) check(provider string) error {
	if limit := b.limits[provider]; limit > 0 && b.counts[provider] >= limit {
		return fmt.Errorf("%s (%d/%d): %w", provider, b.counts[provider], limit, ErrBudgetExceeded)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		return fmt.Errorf("total (%d/%d): %w", b.total, b.maxTotal, ErrBudgetExceeded)
	}
	return nil
}

// Total returns the number of recorded calls.
func (b *Budget) Total() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Stats returns a copy of the per-provider counts.
func (b *Budget) Stats() map[string]int {
	out := make(map[string]int)
	if b == nil {
		return out
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}

// LogStats writes the usage summary.
func (b *Budget) LogStats(log *slog.Logger) {
	stats := b.Stats()
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)

	args := []any{"total", b.Total()}
	for _, n := range names {
		args = append(args, n, stats[n])
	}
	log.Info("📊 AI usage", args...)
}
