package synthesis

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/model"
)

// rawOpportunity mirrors the model output shape before coercion. URL is
// kept loose because models occasionally emit it as an object or array.
type rawOpportunity struct {
	Category  string          `json:"category"`
	Title     string          `json:"title"`
	Rationale string          `json:"rationale"`
	URL       json.RawMessage `json:"url"`
	Score     float64         `json:"score"`
}

type rawPayload struct {
	Opportunities []rawOpportunity `json:"opportunities"`
}

// trailingCommaPattern matches a comma directly before a closing brace or
// bracket, the most common malformation in model JSON.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// Parse extracts opportunities from raw model output. It tries strict
// unmarshaling first, then progressively looser recoveries: fence
// stripping, balanced-brace block extraction, trailing-comma removal.
// An error means the section is unrecoverable; callers degrade it.
func Parse(text string, section model.Section) ([]model.Opportunity, error) {
	candidates := []string{
		strings.TrimSpace(text),
		stripFences(text),
		extractJSONBlock(text),
	}

	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, attempt := range []string{c, trailingCommaPattern.ReplaceAllString(c, "$1")} {
			var payload rawPayload
			if err := json.Unmarshal([]byte(attempt), &payload); err != nil {
				lastErr = err
				continue
			}
			return coerceOpportunities(payload.Opportunities, section), nil
		}
	}

	if lastErr == nil {
		lastErr = eris.New("empty model output")
	}
	return nil, eris.Wrapf(lastErr, "synthesis: unparseable output for section %s", section)
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			return strings.TrimSpace(text)
		}
	}
	return text
}

// extractJSONBlock finds the first balanced top-level JSON object in text,
// tracking brace depth while skipping string literals. This recovers JSON
// embedded in conversational filler.
func extractJSONBlock(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func coerceOpportunities(raws []rawOpportunity, section model.Section) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(raws))
	for _, r := range raws {
		url := coerceURL(r.URL)
		if url == "" || strings.TrimSpace(r.Title) == "" {
			continue
		}
		out = append(out, model.Opportunity{
			Category:  NormalizeCategory(r.Category),
			Title:     strings.TrimSpace(r.Title),
			Rationale: strings.TrimSpace(r.Rationale),
			URL:       url,
			Score:     clampScore(r.Score),
			Section:   section,
		})
	}
	return out
}

// coerceURL accepts the URL field as a plain string, an object holding a
// url/href/link key, or an array whose first usable element wins.
func coerceURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"url", "href", "link"} {
			if v, ok := obj[key]; ok {
				if u := coerceURL(v); u != "" {
					return u
				}
			}
		}
		return ""
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if u := coerceURL(v); u != "" {
				return u
			}
		}
	}
	return ""
}

func clampScore(score float64) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(score)
	}
}
