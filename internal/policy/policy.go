// Package policy holds the versioned run policies and the resolver that
// picks one for a client profile.
package policy

import "github.com/sells-group/weekly-intel/internal/model"

// Policy controls thresholds, languages and lookback for one pipeline run.
// Policies are versioned by Key and immutable; changing behavior means
// adding a new key, not editing an existing one in place.
type Policy struct {
	Key                   string                `json:"key"`
	AllowedLanguages      []string              `json:"allowed_languages"`
	MinSelectedPerSection map[model.Section]int `json:"min_selected_per_section"`
	// SectionThresholds is the heuristic score floor for admission, per section.
	SectionThresholds map[model.Section]int `json:"section_thresholds"`
	MinAllowlistRatio float64               `json:"min_allowlist_ratio"`
	LookbackWeeks     int                   `json:"lookback_weeks"`
}

// MinSelected returns the per-section minimum, defaulting to 3.
func (p Policy) MinSelected(section model.Section) int {
	if n, ok := p.MinSelectedPerSection[section]; ok {
		return n
	}
	return 3
}

// Threshold returns the admission score floor for a section, defaulting to 50.
func (p Policy) Threshold(section model.Section) int {
	if n, ok := p.SectionThresholds[section]; ok {
		return n
	}
	return 50
}

// Known policy keys.
const (
	KeyDefault         = "default"
	KeyRegulatedStrict = "regulated_strict"
	KeyBroadDiscovery  = "broad_discovery"
)

// Registry returns the versioned policy set. Kept deliberately small: every
// key here is a behavior contract that operations can pin via override.
func Registry() map[string]Policy {
	def := Policy{
		Key:              KeyDefault,
		AllowedLanguages: []string{"lang_pt", "lang_en"},
		MinSelectedPerSection: map[model.Section]int{
			model.SectionMarket:      3,
			model.SectionTrends:      3,
			model.SectionCompetition: 3,
			model.SectionAudience:    3,
			model.SectionSeasonality: 1,
			model.SectionBrand:       1,
		},
		SectionThresholds: map[model.Section]int{
			model.SectionMarket:      55,
			model.SectionTrends:      55,
			model.SectionCompetition: 50,
			model.SectionAudience:    50,
			model.SectionSeasonality: 45,
			model.SectionBrand:       45,
		},
		MinAllowlistRatio: 0.60,
		LookbackWeeks:     4,
	}

	strict := def
	strict.Key = KeyRegulatedStrict
	strict.SectionThresholds = map[model.Section]int{
		model.SectionMarket:      65,
		model.SectionTrends:      65,
		model.SectionCompetition: 60,
		model.SectionAudience:    55,
		model.SectionSeasonality: 50,
		model.SectionBrand:       50,
	}
	strict.MinAllowlistRatio = 0.70
	strict.LookbackWeeks = 6

	broad := def
	broad.Key = KeyBroadDiscovery
	broad.MinSelectedPerSection = map[model.Section]int{
		model.SectionMarket:      2,
		model.SectionTrends:      2,
		model.SectionCompetition: 2,
		model.SectionAudience:    2,
		model.SectionSeasonality: 1,
		model.SectionBrand:       1,
	}
	broad.SectionThresholds = map[model.Section]int{
		model.SectionMarket:      45,
		model.SectionTrends:      45,
		model.SectionCompetition: 40,
		model.SectionAudience:    40,
		model.SectionSeasonality: 35,
		model.SectionBrand:       35,
	}
	broad.MinAllowlistRatio = 0.50

	return map[string]Policy{
		def.Key:    def,
		strict.Key: strict,
		broad.Key:  broad,
	}
}

// Get returns the policy for key, falling back to the default policy.
func Get(key string) Policy {
	reg := Registry()
	if p, ok := reg[key]; ok {
		return p
	}
	return reg[KeyDefault]
}

// IsValidKey reports whether key names a registered policy.
func IsValidKey(key string) bool {
	_, ok := Registry()[key]
	return ok
}
