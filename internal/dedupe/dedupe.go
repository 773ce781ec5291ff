// Package dedupe collapses duplicate candidates within a run and filters
// out links a client already received inside the policy lookback window.
package dedupe

import (
	"time"

	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
)

// Collapse removes duplicate candidates by canonical (domain, path) key,
// keeping the highest-scoring occurrence. When scores tie, the earlier
// candidate wins, so allowlist picks surfaced first stay ahead of raw
// duplicates found later.
func Collapse(candidates []model.SourceCandidate) []model.SourceCandidate {
	type slot struct {
		index int
		cand  model.SourceCandidate
	}
	seen := make(map[string]slot, len(candidates))
	order := make([]string, 0, len(candidates))

	for i, c := range candidates {
		key := history.EntryKey(c.Domain, c.Path)
		best, ok := seen[key]
		if !ok {
			seen[key] = slot{index: i, cand: c}
			order = append(order, key)
			continue
		}
		if c.Score > best.cand.Score {
			seen[key] = slot{index: best.index, cand: c}
		}
	}

	out := make([]model.SourceCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key].cand)
	}
	return out
}

// FilterSeen drops candidates whose (domain, path) key appears in the
// client's recent history. The recent set is scoped to the policy lookback
// window by the history query, so anything present in it is excluded.
func FilterSeen(candidates []model.SourceCandidate, recent map[string]time.Time) []model.SourceCandidate {
	if len(recent) == 0 {
		return candidates
	}
	out := make([]model.SourceCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := recent[history.EntryKey(c.Domain, c.Path)]; seen {
			continue
		}
		out = append(out, c)
	}
	return out
}

// LookbackSince converts a policy lookback in weeks to the cutoff instant
// used for the history query. The window is rolling, not calendar aligned.
func LookbackSince(now time.Time, weeks int) time.Time {
	if weeks <= 0 {
		weeks = 4
	}
	return now.AddDate(0, 0, -7*weeks)
}
