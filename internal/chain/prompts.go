package chain

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/technews/internal/news"
)

// maxContentRunes bounds each item's content inside the structuring prompt.
const maxContentRunes = 500

var defaultSystem = map[string]string{
	StageStructuring: "You are a news data editor. Organize the supplied news items into a structured daily digest. " +
		"Answer with a single JSON object and nothing else.",
	StageNarrative: "You are a technology columnist. Turn the structured digest into a readable long-form daily report. " +
		"Answer with a single JSON object and nothing else.",
	StageCondensation: "You are the editor-in-chief. Condense the daily report into a short message suitable for a chat channel. " +
		"Answer with a single JSON object and nothing else.",
	StagePresentation: "You are a front-end developer. Render the daily report as a complete, self-contained HTML page. " +
		"Answer with the HTML document only.",
}

type promptItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
	Source  string `json:"source"`
	Score   int    `json:"score"`
}

func systemFor(stage string, s StageSettings) string {
	if s.System != "" {
		return s.System
	}
	return defaultSystem[stage]
}

func structuringPrompt(date string, items []news.ScoredItem) (string, error) {
	payload := make([]promptItem, 0, len(items))
	for _, it := range items {
		payload = append(payload, promptItem{
			Title:   it.Title,
			Link:    it.Link,
			Summary: truncate(it.Content, maxContentRunes),
			Source:  it.SourceLabel,
			Score:   it.Score,
		})
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n\nNews items (JSON):\n%s\n\n", date, data)
	b.WriteString(`Return JSON of the form {"date": "YYYY-MM-DD", "headline": "...", ` +
		`"items": [{"title": "...", "link": "...", "summary": "...", "category": "..."}]}. ` +
		"Keep every link exactly as given.")
	return b.String(), nil
}

func narrativePrompt(date string, s StructuringOutput) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Date: %s\n\nStructured digest (JSON):\n%s\n\n"+
		`Return JSON of the form {"notion_daily_report_text": "..."}.`, date, data), nil
}

func condensationPrompt(date string, n NarrativeOutput) (string, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Date: %s\n\nDaily report (JSON):\n%s\n\n"+
		`Return JSON of the form {"line_message_text": "..."}.`, date, data), nil
}

func presentationPrompt(date string, s StructuringOutput, n NarrativeOutput, c CondensationOutput) (string, error) {
	data, err := json.MarshalIndent(struct {
		Date     string `json:"date"`
		Headline string `json:"headline"`
		Report   string `json:"report"`
		Summary  string `json:"summary"`
	}{date, s.Headline, n.ReportText, c.MessageText}, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Page content (JSON):\n%s\n\n"+
		`Return one HTML document starting with <!DOCTYPE html> and ending with </html>. `+
		`Include a <title> and a <meta name="description"> built from the summary.`, data), nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
