// Package digest assembles validated per-section opportunities into the
// final weekly payload: ordering, cross-section uniqueness, category
// diversity and coverage accounting.
package digest

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

// defaultMaxCategoryShare caps any single category at 40% of the digest.
const defaultMaxCategoryShare = 0.4

// SectionInput carries one section's validated opportunities plus the
// counters accumulated by the earlier stages.
type SectionInput struct {
	Section       model.Section
	Opportunities []model.Opportunity
	Raw           int
	Admitted      int
	QuotaLimited  bool
	Degraded      bool
}

// Aggregator builds DigestPayloads.
type Aggregator struct {
	emitter  events.Emitter
	maxShare float64
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithMaxCategoryShare overrides the per-category share cap (0 < share <= 1).
func WithMaxCategoryShare(share float64) Option {
	return func(a *Aggregator) {
		if share > 0 && share <= 1 {
			a.maxShare = share
		}
	}
}

// New creates an Aggregator emitting coverage events through emitter.
func New(emitter events.Emitter, opts ...Option) *Aggregator {
	a := &Aggregator{emitter: emitter, maxShare: defaultMaxCategoryShare}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate orders and prunes the per-section opportunities into a payload.
// Sections appear in emission order; within a section opportunities are
// sorted by score descending. No two opportunities in the payload share a
// (domain, path) key, and no category exceeds the configured share of the
// digest. Thin sections are kept and reported, never dropped.
func (a *Aggregator) Aggregate(clientID string, now time.Time, inputs map[model.Section]SectionInput, pol policy.Policy) *model.DigestPayload {
	payload := &model.DigestPayload{
		ClientID:    clientID,
		Week:        model.ISOWeek(now),
		GeneratedAt: now.UTC(),
	}

	seen := make(map[string]bool)
	var ordered []model.Section
	planned := 0
	for _, section := range model.Sections() {
		in, ok := inputs[section]
		if !ok {
			in = SectionInput{Section: section}
		}
		sortByScore(in.Opportunities)
		in.Opportunities = dedupeAcrossSections(in.Opportunities, seen)
		inputs[section] = in
		ordered = append(ordered, section)
		planned += len(in.Opportunities)
	}

	catCap := categoryCap(a.maxShare, planned)
	catCounts := make(map[model.Category]int)

	for _, section := range ordered {
		in := inputs[section]
		kept := make([]model.Opportunity, 0, len(in.Opportunities))
		for _, opp := range in.Opportunities {
			if catCounts[opp.Category] >= catCap {
				continue
			}
			catCounts[opp.Category]++
			opp.Section = section
			kept = append(kept, opp)
		}

		sec := model.DigestSection{
			Name:          section,
			Opportunities: kept,
			Coverage: model.SectionCoverage{
				Raw:      in.Raw,
				Admitted: in.Admitted,
				Final:    len(kept),
			},
			QuotaLimited: in.QuotaLimited,
			Degraded:     in.Degraded,
		}
		payload.Sections = append(payload.Sections, sec)

		if minNeeded := pol.MinSelected(section); len(kept) < minNeeded {
			a.emitter.Emit(events.LowCoverage{
				ClientID:  clientID,
				Section:   section,
				PolicyKey: pol.Key,
				Selected:  len(kept),
				MinNeeded: minNeeded,
			})
		}
	}

	return payload
}

// HistoryEntries converts a finished payload into the append-only rows
// recorded after the digest is handed off.
func HistoryEntries(payload *model.DigestPayload) []model.HistoryEntry {
	var entries []model.HistoryEntry
	for _, sec := range payload.Sections {
		for _, opp := range sec.Opportunities {
			entries = append(entries, model.HistoryEntry{
				ClientID: payload.ClientID,
				Domain:   urlkey.Domain(opp.URL),
				Path:     urlkey.Path(opp.URL),
				Section:  sec.Name,
				SeenAt:   payload.GeneratedAt,
			})
		}
	}
	return entries
}

// dedupeAcrossSections drops opportunities whose (domain, path) already
// appeared in an earlier section. Sections are processed in emission order,
// so earlier sections win ties.
func dedupeAcrossSections(opps []model.Opportunity, seen map[string]bool) []model.Opportunity {
	kept := opps[:0]
	for _, opp := range opps {
		key := history.EntryKey(urlkey.Domain(opp.URL), urlkey.Path(opp.URL))
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, opp)
	}
	return kept
}

// categoryCap returns the maximum opportunities any one category may take.
// Always at least 1 so a single-item digest is never emptied.
func categoryCap(share float64, planned int) int {
	if planned <= 0 {
		return 1
	}
	c := int(math.Ceil(share * float64(planned)))
	if c < 1 {
		c = 1
	}
	return c
}

func sortByScore(opps []model.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score > opps[j].Score
	})
}
