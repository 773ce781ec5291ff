// Package quality scores and admits search candidates using curated
// domain lists and URL heuristics.
package quality

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds the curated admission rule sets. The zero value rejects
// nothing; production rules come from the embedded default or a config file.
type Rules struct {
	// DeniedDomains are rejected by exact or suffix domain match.
	DeniedDomains []string `yaml:"denied_domains"`
	// DeniedPathPatterns reject listing/search/tag style URLs by substring.
	DeniedPathPatterns []string `yaml:"denied_path_patterns"`
	// BlockedExtensions reject non-HTML resources.
	BlockedExtensions []string `yaml:"blocked_extensions"`
	// Allowlists map section -> domain -> trust score.
	Allowlists map[model.Section]map[string]int `yaml:"allowlists"`
}

// DefaultRules parses the embedded rule sets.
func DefaultRules() (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(defaultRulesYAML, &r); err != nil {
		return nil, eris.Wrap(err, "quality: parse embedded rules")
	}
	return &r, nil
}

// LoadRules reads rule sets from a YAML file, for operational overrides.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: read rules %s", path)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "quality: parse rules %s", path)
	}
	return &r, nil
}

// IsDeniedDomain reports whether the URL's domain is on the denylist,
// matching exactly or as a subdomain.
func (r *Rules) IsDeniedDomain(rawURL string) bool {
	domain := urlkey.Domain(rawURL)
	if domain == "" {
		return true
	}
	for _, denied := range r.DeniedDomains {
		if domain == denied || strings.HasSuffix(domain, "."+denied) {
			return true
		}
	}
	return false
}

// IsDeniedPath reports whether the URL matches a denied path pattern or a
// blocked resource extension.
func (r *Rules) IsDeniedPath(rawURL string) bool {
	path := strings.ToLower(urlkey.Path(rawURL))
	for _, pattern := range r.DeniedPathPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	for _, ext := range r.BlockedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// AllowlistScore returns the curated trust score for the URL's domain in the
// given section. Domains listed under another section still match, at a
// small penalty.
func (r *Rules) AllowlistScore(section model.Section, rawURL string) (int, bool) {
	domain := urlkey.Domain(rawURL)
	if domain == "" {
		return 0, false
	}
	if score, ok := r.Allowlists[section][domain]; ok {
		return score, true
	}
	for sect, domains := range r.Allowlists {
		if sect == section {
			continue
		}
		if score, ok := domains[domain]; ok {
			if score > 10 {
				return score - 10, true
			}
			return score, true
		}
	}
	return 0, false
}

// AllowedDomains returns the allowlisted domains for a section, for
// injection into search queries.
func (r *Rules) AllowedDomains(section model.Section) []string {
	domains := make([]string, 0, len(r.Allowlists[section]))
	for d := range r.Allowlists[section] {
		domains = append(domains, d)
	}
	return domains
}
