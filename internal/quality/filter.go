package quality

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

// defaultScore is the base heuristic score for unknown domains.
const defaultScore = 50

// maxPerDomain caps candidates admitted from a single domain per section.
const maxPerDomain = 2

// datePattern matches date-like URL segments (/2026/08/, /2026-08-21/).
var datePattern = regexp.MustCompile(`/20\d{2}([/-]\d{1,2}){1,2}(/|$)`)

// Filter applies the admission pipeline: denylists, allowlist tagging,
// heuristic scoring and bounded fallback admission.
type Filter struct {
	rules   *Rules
	emitter events.Emitter
}

// NewFilter creates a Filter over the given rule sets.
func NewFilter(rules *Rules, emitter events.Emitter) *Filter {
	return &Filter{rules: rules, emitter: emitter}
}

// Filter admits candidates for one section under the given policy and emits
// a SectionMetrics event. Input order is not preserved: admitted candidates
// come back sorted by score descending.
func (f *Filter) Filter(clientID string, section model.Section, candidates []model.SourceCandidate, pol policy.Policy) []model.SourceCandidate {
	var (
		denied   int
		scored   []model.SourceCandidate
		fallback []model.SourceCandidate
	)

	floor := pol.Threshold(section)

	for _, c := range candidates {
		if f.rules.IsDeniedDomain(c.URL) || f.rules.IsDeniedPath(c.URL) {
			denied++
			continue
		}

		c.Domain = urlkey.Domain(c.URL)
		c.Path = urlkey.Path(c.URL)
		c.Section = section

		if score, ok := f.rules.AllowlistScore(section, c.URL); ok {
			c.Origin = model.OriginAllowlist
			c.Score = score
			scored = append(scored, c)
			continue
		}

		c.Score = heuristicScore(c)
		if c.Score >= floor {
			c.Origin = model.OriginRaw
			scored = append(scored, c)
		} else {
			c.Origin = model.OriginFallback
			fallback = append(fallback, c)
		}
	}

	sortByScore(scored)
	sortByScore(fallback)

	admitted := capPerDomain(scored)

	// Fallback candidates fill in only when the section would otherwise sit
	// below its coverage minimum.
	minNeeded := pol.MinSelected(section)
	for _, c := range fallback {
		if len(admitted) >= minNeeded {
			break
		}
		admitted = capAppend(admitted, c)
	}

	var allowlisted, fallbackAdmitted int
	for _, c := range admitted {
		switch c.Origin {
		case model.OriginAllowlist:
			allowlisted++
		case model.OriginFallback:
			fallbackAdmitted++
		}
	}

	f.emitter.Emit(events.SectionMetrics{
		ClientID:    clientID,
		Section:     section,
		PolicyKey:   pol.Key,
		Raw:         len(candidates),
		Denied:      denied,
		Allowlisted: allowlisted,
		Fallback:    fallbackAdmitted,
		Admitted:    len(admitted),
	})

	if hasAllowlist := len(f.rules.Allowlists[section]) > 0; hasAllowlist && len(admitted) > 0 {
		ratio := float64(allowlisted) / float64(len(admitted))
		if ratio < pol.MinAllowlistRatio {
			f.emitter.Emit(events.LowAllowlistRatio{
				ClientID:  clientID,
				Section:   section,
				PolicyKey: pol.Key,
				Ratio:     ratio,
				Threshold: pol.MinAllowlistRatio,
			})
		}
	}

	return admitted
}

// heuristicScore scores an unlisted candidate from URL and title shape:
// article-like paths (deep, dated) score higher than shallow or bare ones.
func heuristicScore(c model.SourceCandidate) int {
	score := defaultScore

	domain := c.Domain
	switch {
	case strings.HasSuffix(domain, ".gov.br") || strings.HasSuffix(domain, ".gov"):
		score += 30
	case strings.HasSuffix(domain, ".edu.br") || strings.HasSuffix(domain, ".edu"):
		score += 25
	case strings.HasSuffix(domain, ".org.br") || strings.HasSuffix(domain, ".org"):
		score += 15
	}

	depth := pathDepth(c.Path)
	switch {
	case depth >= 2:
		score += 10
	case depth == 1:
		score += 5
	}

	if datePattern.MatchString(c.Path) {
		score += 10
	}

	titleLen := len(strings.TrimSpace(c.Title))
	switch {
	case titleLen >= 20 && titleLen <= 140:
		score += 5
	case titleLen < 10:
		score -= 10
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func pathDepth(path string) int {
	depth := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

func sortByScore(candidates []model.SourceCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

func capPerDomain(candidates []model.SourceCandidate) []model.SourceCandidate {
	var out []model.SourceCandidate
	for _, c := range candidates {
		out = capAppend(out, c)
	}
	return out
}

// capAppend appends c unless its domain already hit the per-domain cap.
func capAppend(admitted []model.SourceCandidate, c model.SourceCandidate) []model.SourceCandidate {
	count := 0
	for _, a := range admitted {
		if a.Domain == c.Domain {
			count++
		}
	}
	if count >= maxPerDomain {
		return admitted
	}
	return append(admitted, c)
}
