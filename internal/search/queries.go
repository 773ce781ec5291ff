package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/weekly-intel/internal/model"
)

// maxQueryLen caps query length; the API truncates silently past ~2k but
// long tail terms only dilute relevance.
const maxQueryLen = 220

// maxAllowlistDomains bounds the site: clause so the query stays within the
// API's operator limits.
const maxAllowlistDomains = 8

// siteOperator strips user-supplied site: filters so profile text cannot
// steer queries off the curated source set.
var siteOperator = regexp.MustCompile(`(?i)\bsite:\S+`)

// sectionTemplates phrase each section's intent per query language.
var sectionTemplates = map[model.Section]map[string]string{
	model.SectionMarket: {
		"lang_pt": "mercado de %s notícias análise",
		"lang_en": "%s market news analysis",
	},
	model.SectionTrends: {
		"lang_pt": "tendências em %s novidades",
		"lang_en": "%s emerging trends",
	},
	model.SectionCompetition: {
		"lang_pt": "concorrência %s estratégias empresas",
		"lang_en": "%s competitors strategy",
	},
	model.SectionAudience: {
		"lang_pt": "comportamento do consumidor %s",
		"lang_en": "%s consumer behavior insights",
	},
	model.SectionSeasonality: {
		"lang_pt": "datas sazonais %s campanhas",
		"lang_en": "%s seasonal marketing calendar",
	},
	model.SectionBrand: {
		"lang_pt": "marketing de conteúdo %s cases",
		"lang_en": "%s content marketing case study",
	},
}

// BuildQuery composes the search query for one (section, language) pair.
func BuildQuery(profile model.ClientProfile, section model.Section, language string) string {
	tmpl, ok := sectionTemplates[section][language]
	if !ok {
		tmpl = "%s"
	}
	term := sanitizeTerm(profile.Specialization)
	if term == "" {
		term = sanitizeTerm(profile.Name)
	}
	return truncateQuery(fmt.Sprintf(tmpl, term))
}

// WithAllowlist narrows query to the section's curated domains. Returns the
// plain query unchanged when the section has no allowlist.
func WithAllowlist(query string, domains []string) string {
	if len(domains) == 0 {
		return query
	}
	if len(domains) > maxAllowlistDomains {
		domains = domains[:maxAllowlistDomains]
	}
	clauses := make([]string, 0, len(domains))
	for _, d := range domains {
		clauses = append(clauses, "site:"+d)
	}
	// The clause is bounded by maxAllowlistDomains; truncating here could
	// cut a site: operator in half, so only the base query is capped.
	return query + " (" + strings.Join(clauses, " OR ") + ")"
}

func sanitizeTerm(s string) string {
	s = siteOperator.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func truncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= maxQueryLen {
		return q
	}
	return strings.TrimSpace(string(runes[:maxQueryLen]))
}
