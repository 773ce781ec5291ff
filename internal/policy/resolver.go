package policy

import (
	"strings"

	"github.com/sells-group/weekly-intel/internal/model"
)

// Decision is the structured record of a policy resolution.
type Decision struct {
	Policy        Policy `json:"policy"`
	Source        string `json:"source"` // "override" | "heuristic"
	Reason        string `json:"reason"`
	OverrideValue string `json:"override_value,omitempty"`
}

// Rule is one named predicate in the resolution order. The first rule whose
// predicate matches decides the policy key.
type Rule struct {
	Name      string
	PolicyKey string
	Matches   func(p model.ClientProfile) bool
}

// regulatedKeywords flag profiles operating in regulated industries.
var regulatedKeywords = []string{
	"law", "legal", "attorney", "advocac",
	"accounting", "tax advis",
	"clinic", "medical", "dental", "pharma", "health",
	"invest", "financ", "insurance", "bank",
}

func isRegulated(p model.ClientProfile) bool {
	combined := strings.ToLower(p.Specialization + " " + p.Description)
	for _, kw := range regulatedKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

func isIncomplete(p model.ClientProfile) bool {
	const descriptionFloor = 30
	return strings.TrimSpace(p.Specialization) == "" ||
		len(strings.TrimSpace(p.Description)) < descriptionFloor
}

// HeuristicRules returns the ordered heuristic rule list, evaluated after the
// explicit override. Exported so each rule can be exercised on its own.
func HeuristicRules() []Rule {
	return []Rule{
		{Name: "regulated_keywords", PolicyKey: KeyRegulatedStrict, Matches: isRegulated},
		{Name: "incomplete_profile", PolicyKey: KeyBroadDiscovery, Matches: isIncomplete},
		{Name: "default", PolicyKey: KeyDefault, Matches: func(model.ClientProfile) bool { return true }},
	}
}

// Resolve picks a policy for the profile. Precedence: a valid explicit
// override wins; an invalid override falls through to the heuristics with its
// value recorded in the reason. Pure and deterministic, no I/O.
func Resolve(profile model.ClientProfile) Decision {
	override := strings.ToLower(strings.TrimSpace(profile.PolicyOverride))
	invalidOverride := ""
	if override != "" {
		if IsValidKey(override) {
			return Decision{
				Policy:        Get(override),
				Source:        "override",
				Reason:        "explicit_override",
				OverrideValue: override,
			}
		}
		invalidOverride = "invalid_override:" + override
	}

	for _, rule := range HeuristicRules() {
		if !rule.Matches(profile) {
			continue
		}
		reason := rule.Name
		if invalidOverride != "" {
			reason = invalidOverride + "|" + reason
		}
		return Decision{
			Policy:        Get(rule.PolicyKey),
			Source:        "heuristic",
			Reason:        reason,
			OverrideValue: override,
		}
	}

	// Unreachable: the last heuristic rule always matches.
	return Decision{Policy: Get(KeyDefault), Source: "heuristic", Reason: "default"}
}
