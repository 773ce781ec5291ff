// Package search fans bilingual, paginated source discovery out across the
// digest sections and folds the results back into per-section candidate sets.
package search

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/quality"
	"github.com/sells-group/weekly-intel/internal/urlkey"
	"github.com/sells-group/weekly-intel/pkg/cse"
)

const (
	defaultMaxPages = 3
	defaultWorkers  = 4
	pageSize        = 10
)

// Result is one section's merged search outcome.
type Result struct {
	Candidates   []model.SourceCandidate
	QuotaLimited bool
}

// Searcher runs the discovery stage for one client at a time.
type Searcher struct {
	client   cse.Client
	rules    *quality.Rules
	emitter  events.Emitter
	maxPages int
	workers  int
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithMaxPages sets how many result pages are fetched per (section, language).
func WithMaxPages(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithWorkers bounds concurrent search calls for one client.
func WithWorkers(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a Searcher.
func New(client cse.Client, rules *quality.Rules, emitter events.Emitter, opts ...Option) *Searcher {
	s := &Searcher{
		client:   client,
		rules:    rules,
		emitter:  emitter,
		maxPages: defaultMaxPages,
		workers:  defaultWorkers,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run searches every (section, language) pair of the policy and returns the
// merged candidates per section. Quota exhaustion stops further queries for
// that language across all of the client's workers but never fails the run.
func (s *Searcher) Run(ctx context.Context, clientID string, profile model.ClientProfile, pol policy.Policy) map[model.Section]Result {
	type job struct {
		section  model.Section
		language string
	}

	sections := model.Sections()
	var jobs []job
	for _, section := range sections {
		for _, lang := range pol.AllowedLanguages {
			jobs = append(jobs, job{section: section, language: lang})
		}
	}

	// One cooperative stop flag per language, shared by this client's
	// workers. Sections still in flight check it before each page.
	gates := make(map[string]*atomic.Bool, len(pol.AllowedLanguages))
	for _, lang := range pol.AllowedLanguages {
		gates[lang] = &atomic.Bool{}
	}

	type slot struct {
		candidates   []model.SourceCandidate
		quotaLimited bool
	}
	slots := make([]slot, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, j := range jobs {
		g.Go(func() error {
			cands, limited := s.searchOne(ctx, clientID, profile, j.section, j.language, gates[j.language])
			slots[i] = slot{candidates: cands, quotaLimited: limited}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	results := make(map[model.Section]Result, len(sections))
	for i, j := range jobs {
		r := results[j.section]
		r.Candidates = mergeCandidates(r.Candidates, slots[i].candidates)
		r.QuotaLimited = r.QuotaLimited || slots[i].quotaLimited
		results[j.section] = r
	}
	return results
}

// minPoolBeforeFallback widens an allowlist-narrowed query to the plain one
// when the curated set returns fewer candidates than this.
const minPoolBeforeFallback = 5

// searchOne paginates one (section, language) query, preferring the
// allowlist-narrowed form and widening to the plain query when the curated
// set comes back thin.
func (s *Searcher) searchOne(ctx context.Context, clientID string, profile model.ClientProfile, section model.Section, language string, gate *atomic.Bool) ([]model.SourceCandidate, bool) {
	plain := BuildQuery(profile, section, language)
	queries := []string{plain}
	if narrowed := WithAllowlist(plain, s.rules.AllowedDomains(section)); narrowed != plain {
		queries = []string{narrowed, plain}
	}

	var merged []model.SourceCandidate
	var anyLimited bool
	for _, query := range queries {
		cands, limited, stop := s.paginate(ctx, clientID, section, language, query, gate)
		merged = mergeCandidates(merged, cands)
		anyLimited = anyLimited || limited
		if stop || len(merged) >= minPoolBeforeFallback {
			break
		}
	}
	return merged, anyLimited
}

func (s *Searcher) paginate(ctx context.Context, clientID string, section model.Section, language string, query string, gate *atomic.Bool) (cands []model.SourceCandidate, limited, stop bool) {
	opts := []cse.SearchOption{cse.WithLanguage(language)}
	if language == "lang_pt" {
		opts = append(opts, cse.WithGeo("br"))
	}

	for page := 0; page < s.maxPages; page++ {
		if ctx.Err() != nil {
			return cands, limited, true
		}
		if gate.Load() {
			// Another worker hit the quota for this language.
			return cands, true, true
		}

		start := page*pageSize + 1
		results, err := s.client.Search(ctx, query, append(opts, cse.WithStart(start))...)
		switch {
		case eris.Is(err, cse.ErrQuotaExhausted):
			gate.Store(true)
			s.emitter.Emit(events.QuotaExhausted{
				ClientID: clientID,
				Section:  section,
				Language: language,
			})
			return cands, true, true
		case err != nil:
			// Retries already happened inside the client; degrade the
			// pair to what was fetched so far.
			zap.L().Warn("search failed",
				zap.String("client", clientID),
				zap.String("section", string(section)),
				zap.String("language", language),
				zap.Error(err),
			)
			return cands, limited, true
		}

		for _, r := range results {
			cands = append(cands, model.SourceCandidate{
				URL:      r.URL,
				Domain:   urlkey.Domain(r.URL),
				Path:     urlkey.Path(r.URL),
				Title:    r.Title,
				Snippet:  r.Snippet,
				Language: language,
				Section:  section,
			})
		}
		if len(results) < pageSize {
			break
		}
	}
	return cands, limited, false
}

// mergeCandidates appends b onto a, dropping URLs already present.
func mergeCandidates(a, b []model.SourceCandidate) []model.SourceCandidate {
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[urlkey.Key(c.URL)] = true
	}
	for _, c := range b {
		key := urlkey.Key(c.URL)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		a = append(a, c)
	}
	return a
}
