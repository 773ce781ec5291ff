package synthesis

import (
	"strings"

	"github.com/sells-group/weekly-intel/internal/model"
)

// categoryKeywords maps loose model phrasing to canonical categories. The
// model is told the canonical set, but Portuguese output and creative
// synonyms still show up. Order matters: more specific phrasings match
// before generic ones.
var categoryKeywords = []struct {
	category model.Category
	keywords []string
}{
	{model.CategoryCaseStudy, []string{"case_study", "case study", "casestudy", "case", "estudo de caso", "success story"}},
	{model.CategoryNewsjacking, []string{"newsjacking", "breaking", "notícia", "noticia", "atualidade", "news"}},
	{model.CategoryDebate, []string{"debate", "discussion", "controversial", "opinion", "polemic", "polêmic"}},
	{model.CategoryEducational, []string{"educational", "education", "how-to", "howto", "tutorial", "guide", "educativ", "dica"}},
	{model.CategoryEntertainment, []string{"entertainment", "fun", "humor", "meme", "entretenimento"}},
	{model.CategoryTrend, []string{"trend", "trending", "tendência", "tendencia", "emerging"}},
}

// NormalizeCategory maps a raw category string to a canonical Category,
// defaulting to CategoryOther.
func NormalizeCategory(raw string) model.Category {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return model.CategoryOther
	}

	// Exact canonical match first.
	switch model.Category(normalized) {
	case model.CategoryDebate, model.CategoryEducational, model.CategoryNewsjacking,
		model.CategoryEntertainment, model.CategoryCaseStudy, model.CategoryTrend:
		return model.Category(normalized)
	}

	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				return entry.category
			}
		}
	}
	return model.CategoryOther
}
