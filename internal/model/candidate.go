package model

// Section identifies one vertical of the weekly digest.
type Section string

const (
	SectionMarket      Section = "market"
	SectionTrends      Section = "trends"
	SectionCompetition Section = "competition"
	SectionAudience    Section = "audience"
	SectionSeasonality Section = "seasonality"
	SectionBrand       Section = "brand"
)

// Sections lists all digest sections in emission order.
func Sections() []Section {
	return []Section{
		SectionMarket,
		SectionTrends,
		SectionCompetition,
		SectionAudience,
		SectionSeasonality,
		SectionBrand,
	}
}

// Origin records how a candidate passed admission.
type Origin string

const (
	OriginRaw       Origin = "raw"
	OriginAllowlist Origin = "allowlist"
	OriginFallback  Origin = "fallback"
)

// SourceCandidate is one search result flowing through the quality and
// dedupe stages. Candidates live only for the duration of a run.
type SourceCandidate struct {
	URL      string  `json:"url"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Language string  `json:"language"`
	Section  Section `json:"section"`
	Origin   Origin  `json:"origin"`
	Score    int     `json:"score"`
}
