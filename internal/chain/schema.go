package chain

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DigestItem is one story in the structured digest.
type DigestItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// StructuringOutput is the digest-shaped intermediate representation.
type StructuringOutput struct {
	Date     string       `json:"date"`
	Headline string       `json:"headline"`
	Items    []DigestItem `json:"items"`
}

// NarrativeOutput is the long-form report.
type NarrativeOutput struct {
	ReportText string `json:"notion_daily_report_text"`
}

// CondensationOutput is the short channel summary.
type CondensationOutput struct {
	MessageText string `json:"line_message_text"`
}

// PresentationOutput is the publishable page.
type PresentationOutput struct {
	HTML        string
	Title       string
	Description string
}

// ParseStructuring is the validation gate of the structuring stage.
func ParseStructuring(raw string) (StructuringOutput, error) {
	var out StructuringOutput
	if err := decodeJSON(StageStructuring, raw, &out); err != nil {
		return out, err
	}

	valid := out.Items[:0:0]
	for _, it := range out.Items {
		it.Title = strings.TrimSpace(it.Title)
		it.Link = strings.TrimSpace(it.Link)
		if it.Title != "" && it.Link != "" {
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return out, &ValidationError{Stage: StageStructuring, Reason: "no item with both title and link"}
	}
	out.Items = valid
	return out, nil
}

// ParseNarrative is the validation gate of the narrative stage.
func ParseNarrative(raw string) (NarrativeOutput, error) {
	var out NarrativeOutput
	if err := decodeJSON(StageNarrative, raw, &out); err != nil {
		return out, err
	}
	out.ReportText = strings.TrimSpace(out.ReportText)
	if out.ReportText == "" {
		return out, &ValidationError{Stage: StageNarrative, Reason: "notion_daily_report_text is empty"}
	}
	return out, nil
}

// ParseCondensation is the validation gate of the condensation stage.
func ParseCondensation(raw string) (CondensationOutput, error) {
	var out CondensationOutput
	if err := decodeJSON(StageCondensation, raw, &out); err != nil {
		return out, err
	}
	out.MessageText = strings.TrimSpace(out.MessageText)
	if out.MessageText == "" {
		return out, &ValidationError{Stage: StageCondensation, Reason: "line_message_text is empty"}
	}
	return out, nil
}

// ParsePresentation is the validation gate of the presentation stage.
func ParsePresentation(raw string) (PresentationOutput, error) {
	doc := htmlDocument(raw)
	lower := strings.ToLower(doc)
	if !strings.Contains(lower, "<html") || !strings.HasSuffix(lower, "</html>") {
		return PresentationOutput{}, &ValidationError{Stage: StagePresentation, Reason: "output is not a complete HTML document"}
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return PresentationOutput{}, &ValidationError{Stage: StagePresentation, Reason: "html does not parse", Err: err}
	}
	if strings.TrimSpace(parsed.Find("body").Text()) == "" {
		return PresentationOutput{}, &ValidationError{Stage: StagePresentation, Reason: "html body is empty"}
	}

	desc, _ := parsed.Find(`meta[name="description"]`).First().Attr("content")
	return PresentationOutput{
		HTML:        doc,
		Title:       strings.TrimSpace(parsed.Find("title").First().Text()),
		Description: strings.TrimSpace(desc),
	}, nil
}

// ValidationError means a stage's output could not be coerced into its
// schema. It counts as a failed attempt.
type ValidationError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid output: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: invalid output: %s", e.Stage, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
