// Package synthesis turns admitted candidates into content opportunities
// through the model, with a tolerant parser for imperfect JSON output.
package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/weekly-intel/internal/model"
)

// Model constants.
const (
	ModelHaiku  = "claude-haiku-4-5-20251001"
	ModelSonnet = "claude-sonnet-4-5-20250929"

	DefaultModel     = ModelSonnet
	DefaultMaxTokens = 2048
)

// systemPrompt is the shared system instruction for every section call.
const systemPrompt = `You are a content strategist for small and medium businesses. Each week you review fresh articles about a client's market and propose content opportunities the client can publish about.

Rules:
- Propose opportunities ONLY based on the provided source articles
- Every opportunity must reference one source article by its exact URL from the list
- Never invent, shorten or modify URLs
- Return valid JSON for every response
- Write titles and rationales in the language of the source article
- Score each opportunity 0-100 by how actionable and timely it is for this specific client
- Categories: debate, educational, newsjacking, entertainment, case_study, trend`

// SystemPrompt returns the shared system instruction, identical across
// clients so batch runs can reuse the prompt cache.
func SystemPrompt() string {
	return systemPrompt
}

// sectionFocus describes what each digest section is looking for.
var sectionFocus = map[model.Section]string{
	model.SectionMarket:      "market news, economic shifts and regulation changes affecting the client's industry",
	model.SectionTrends:      "emerging trends, tools and formats the client could adopt early",
	model.SectionCompetition: "competitor moves, positioning angles and gaps the client can exploit",
	model.SectionAudience:    "audience behavior, customer pain points and demand signals",
	model.SectionSeasonality: "upcoming dates, seasonal peaks and commemorative hooks",
	model.SectionBrand:       "brand building, reputation and storytelling angles",
}

// BuildSectionPrompt constructs the user message for one section's
// synthesis call.
func BuildSectionPrompt(profile model.ClientProfile, section model.Section, candidates []model.SourceCandidate, excludedTopics []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Client: %s\nSpecialization: %s\n", profile.Name, profile.Specialization)
	if profile.Description != "" {
		fmt.Fprintf(&sb, "About: %s\n", profile.Description)
	}
	if profile.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", profile.Audience)
	}

	fmt.Fprintf(&sb, "\nSection: %s\nFocus: %s\n", section, sectionFocus[section])

	sb.WriteString("\nSource articles:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n", i+1, c.Title, c.URL)
		if c.Snippet != "" {
			fmt.Fprintf(&sb, "   Summary: %s\n", c.Snippet)
		}
	}

	if len(excludedTopics) > 0 {
		sb.WriteString("\nThe client already received content about these topics recently. Do NOT repeat them:\n")
		for _, topic := range excludedTopics {
			fmt.Fprintf(&sb, "- %s\n", topic)
		}
	}

	sb.WriteString(`
Respond with ONLY valid JSON in this format:
{
  "opportunities": [
    {
      "category": "<one of: debate, educational, newsjacking, entertainment, case_study, trend>",
      "title": "<content title suggestion>",
      "rationale": "<why this works for this client, 1-2 sentences>",
      "url": "<exact URL of the source article>",
      "score": <0 to 100>
    }
  ]
}`)

	return sb.String()
}

// BorrowForAudience supplements a thin audience section with the strongest
// candidates from the other sections. Audience framing works on almost any
// article, so borrowing beats returning an empty section.
func BorrowForAudience(bySection map[model.Section][]model.SourceCandidate, minNeeded int) []model.SourceCandidate {
	audience := bySection[model.SectionAudience]
	if len(audience) >= minNeeded {
		return audience
	}

	seen := make(map[string]struct{}, len(audience))
	for _, c := range audience {
		seen[c.Domain+c.Path] = struct{}{}
	}

	var borrowed []model.SourceCandidate
	for _, section := range model.Sections() {
		if section == model.SectionAudience {
			continue
		}
		borrowed = append(borrowed, bySection[section]...)
	}
	sortByScore(borrowed)

	out := append([]model.SourceCandidate{}, audience...)
	for _, c := range borrowed {
		if len(out) >= minNeeded {
			break
		}
		key := c.Domain + c.Path
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.Section = model.SectionAudience
		out = append(out, c)
	}
	return out
}

func sortByScore(candidates []model.SourceCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}
