package linkcheck

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

// defaultWorkers bounds concurrent validations per client.
const defaultWorkers = 8

// Checker runs validation and recovery over a section's opportunities.
type Checker struct {
	validator *Validator
	emitter   events.Emitter
	workers   int
}

// NewChecker creates a Checker. workers <= 0 uses the default bound.
func NewChecker(validator *Validator, emitter events.Emitter, workers int) *Checker {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Checker{validator: validator, emitter: emitter, workers: workers}
}

// candidateClaim reserves candidates for swap recovery so two
// opportunities never end up pointing at the same substitute URL.
type candidateClaim struct {
	mu         sync.Mutex
	candidates []model.SourceCandidate
	recent     map[string]time.Time
	used       map[string]struct{}
}

// take reserves the first candidate (candidates arrive score-ordered)
// whose key is neither in recent history nor already claimed.
func (cc *candidateClaim) take(excludeURL string) (model.SourceCandidate, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for _, cand := range cc.candidates {
		if cand.URL == excludeURL {
			continue
		}
		key := history.EntryKey(cand.Domain, cand.Path)
		if _, seen := cc.recent[key]; seen {
			continue
		}
		if _, taken := cc.used[key]; taken {
			continue
		}
		cc.used[key] = struct{}{}
		return cand, true
	}
	return model.SourceCandidate{}, false
}

// ValidateAndRecover returns the opportunities that survive link checking,
// in their original order. For each opportunity it first maps a fabricated
// URL back to a real candidate, swaps URLs colliding with the client's
// recent history for an unused candidate, then validates liveness. Only a
// confirmed hard or soft 404 with no recoverable alternative drops an
// opportunity.
func (c *Checker) ValidateAndRecover(ctx context.Context, clientID string, opportunities []model.Opportunity, candidates []model.SourceCandidate, recent map[string]time.Time) []model.Opportunity {
	type outcome struct {
		opp  model.Opportunity
		keep bool
	}
	results := make([]outcome, len(opportunities))

	claims := &candidateClaim{
		candidates: candidates,
		recent:     recent,
		used:       make(map[string]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, opp := range opportunities {
		g.Go(func() error {
			kept, keep := c.checkOne(gctx, clientID, opp, candidates, recent, claims)
			results[i] = outcome{opp: kept, keep: keep}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	out := make([]model.Opportunity, 0, len(opportunities))
	for _, r := range results {
		if r.keep {
			out = append(out, r.opp)
		}
	}
	return out
}

func (c *Checker) checkOne(ctx context.Context, clientID string, opp model.Opportunity, candidates []model.SourceCandidate, recent map[string]time.Time, claims *candidateClaim) (model.Opportunity, bool) {
	original := opp.URL

	if recovered, ok := Recover(opp.URL, opp.Title, candidates); ok && recovered != opp.URL {
		opp.URL = recovered
		c.emitter.Emit(events.LinkRecovered{
			ClientID:     clientID,
			Section:      opp.Section,
			ModelURL:     original,
			RecoveredURL: recovered,
		})
	}

	// A URL the client already received inside the lookback window cannot
	// go out again; swap it for a fresh candidate.
	key := history.EntryKey(urlkey.Domain(opp.URL), urlkey.Path(opp.URL))
	if _, seen := recent[key]; seen {
		swap, ok := claims.take(opp.URL)
		if !ok {
			c.emitter.Emit(events.LinkDropped{
				ClientID: clientID,
				Section:  opp.Section,
				URL:      opp.URL,
				Status:   "history_collision",
			})
			return opp, false
		}
		c.emitter.Emit(events.LinkRecovered{
			ClientID:     clientID,
			Section:      opp.Section,
			ModelURL:     opp.URL,
			RecoveredURL: swap.URL,
		})
		opp.URL = swap.URL
	}

	status := c.validator.Check(ctx, opp.URL)
	if status == StatusLive || status == StatusUnreachable {
		return opp, true
	}

	// Confirmed dead. One recovery attempt with a fresh candidate before
	// dropping.
	if swap, ok := claims.take(opp.URL); ok {
		swapStatus := c.validator.Check(ctx, swap.URL)
		if swapStatus == StatusLive || swapStatus == StatusUnreachable {
			c.emitter.Emit(events.LinkRecovered{
				ClientID:     clientID,
				Section:      opp.Section,
				ModelURL:     opp.URL,
				RecoveredURL: swap.URL,
			})
			opp.URL = swap.URL
			return opp, true
		}
	}

	c.emitter.Emit(events.LinkDropped{
		ClientID: clientID,
		Section:  opp.Section,
		URL:      opp.URL,
		Status:   string(status),
	})
	return opp, false
}
