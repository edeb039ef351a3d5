package relevance

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/deusflow/technews/internal/news"
)

// Scorer computes relevance scores. It holds only the folded rule set and
// is safe to reuse across calls; Score has no other inputs.
type Scorer struct {
	weights Weights

	mustKeep           []string
	localeInterest     []string
	globalFocus        []string
	internationalTerms []string
	homeLocaleTerms    []string
	practical          []string
}

// NewScorer folds every keyword list once.
func NewScorer(rules Rules) *Scorer {
	kw := rules.Keywords
	return &Scorer{
		weights:            rules.Weights,
		mustKeep:           foldAll(kw.MustKeep),
		localeInterest:     foldAll(kw.LocaleInterest),
		globalFocus:        foldAll(kw.GlobalFocus),
		internationalTerms: foldAll(kw.InternationalTerms),
		homeLocaleTerms:    foldAll(kw.HomeLocaleTerms),
		practical:          foldAll(kw.Practical),
	}
}

// Score returns the relevance of item under the rules of src.
func (s *Scorer) Score(item news.RawItem, src news.Source) int {
	w := s.weights

	title := fold(item.Title)
	content := fold(item.Content)
	full := title + " " + content

	if countMatches(full, s.mustKeep) > 0 {
		return w.MustKeepScore
	}

	score := src.BaseScore

	score -= w.ExcludePenalty * countMatches(full, foldAll(src.ExcludeKeywords))

	for _, kw := range foldAll(src.PriorityKeywords) {
		switch {
		case strings.Contains(title, kw):
			score += w.PriorityTitle
		case strings.Contains(content, kw):
			score += w.PriorityBody
		}
	}

	score += w.LocaleInterest * countMatches(full, s.localeInterest)
	score += w.GlobalFocus * countMatches(full, s.globalFocus)

	// Cross-locale bonus applies once per category, not per keyword.
	if src.Region.IsLocal() {
		score += w.LocalSource
		if countMatches(full, s.internationalTerms) > 0 {
			score += w.LocalGlobalBonus
		}
	} else if countMatches(full, s.homeLocaleTerms) > 0 {
		score += w.InternationalHomeBonus
	}

	score += w.PracticalTitle * countMatches(title, s.practical)

	length := utf8.RuneCountInString(item.Content)
	for _, threshold := range w.LengthThresholds {
		if length > threshold {
			score += w.LengthBonus
		}
	}

	return score
}

// countMatches returns how many distinct keywords occur in text.
func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, fold(k))
	}
	return out
}
