package chain

import (
	"encoding/json"
	"strings"
)

// StripFences removes a surrounding Markdown code fence such as ```json or
// ```html and trims whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeJSON parses raw into v after cleanup. When the cleaned text is not
// JSON it retries with the outermost {...} span.
func decodeJSON(stage, raw string, v any) error {
	text := StripFences(raw)
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	if span, ok := outermostObject(text); ok {
		if err2 := json.Unmarshal([]byte(span), v); err2 == nil {
			return nil
		}
	}
	return &ValidationError{Stage: stage, Reason: "output is not a JSON object", Err: err}
}

func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// htmlDocument cuts the HTML document out of surrounding chatter.
func htmlDocument(raw string) string {
	s := StripFences(raw)
	lower := strings.ToLower(s)

	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start > 0 {
		s, lower = s[start:], lower[start:]
	}
	if end := strings.LastIndex(lower, "</html>"); end >= 0 {
		s = s[:end+len("</html>")]
	}
	return strings.TrimSpace(s)
}
