package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/quality"
	"github.com/sells-group/weekly-intel/pkg/cse"
)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	calls   map[string]int
	respond func(query string, call int) ([]cse.Result, error)
}

func newFakeSearch(respond func(query string, call int) ([]cse.Result, error)) *fakeSearch {
	return &fakeSearch{calls: make(map[string]int), respond: respond}
}

func (f *fakeSearch) Search(_ context.Context, query string, _ ...cse.SearchOption) ([]cse.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.calls[query]++
	call := f.calls[query]
	f.mu.Unlock()
	return f.respond(query, call)
}

func (f *fakeSearch) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

func testProfile() model.ClientProfile {
	return model.ClientProfile{
		ID:             "client-1",
		Name:           "Clínica Sorriso",
		Specialization: "odontologia estética",
	}
}

func singleLanguagePolicy() policy.Policy {
	pol := policy.Get(policy.KeyDefault)
	pol.AllowedLanguages = []string{"lang_pt"}
	return pol
}

func resultPage(prefix string, n int) []cse.Result {
	out := make([]cse.Result, n)
	for i := range out {
		out[i] = cse.Result{
			URL:     fmt.Sprintf("https://www.example.com/%s/artigo-%d", prefix, i),
			Title:   fmt.Sprintf("Artigo %d sobre o tema", i),
			Snippet: "resumo do artigo",
		}
	}
	return out
}

func mustRules(t *testing.T) *quality.Rules {
	t.Helper()
	rules, err := quality.DefaultRules()
	require.NoError(t, err)
	return rules
}

func TestSearcher_PaginatesUntilShortPage(t *testing.T) {
	fake := newFakeSearch(func(query string, call int) ([]cse.Result, error) {
		if call == 1 {
			return resultPage(fmt.Sprintf("p1-%d", len(query)), 10), nil
		}
		return resultPage(fmt.Sprintf("p2-%d", len(query)), 3), nil
	})
	capture := events.NewCaptureEmitter()
	s := New(fake, mustRules(t), capture, WithMaxPages(3), WithWorkers(1))

	results := s.Run(context.Background(), "client-1", testProfile(), singleLanguagePolicy())

	seasonality := results[model.SectionSeasonality]
	assert.False(t, seasonality.QuotaLimited)
	require.Len(t, seasonality.Candidates, 13)

	first := seasonality.Candidates[0]
	assert.Equal(t, "example.com", first.Domain)
	assert.True(t, strings.HasPrefix(first.Path, "/p1-"))
	assert.Equal(t, "lang_pt", first.Language)
	assert.Equal(t, model.SectionSeasonality, first.Section)
	assert.NotEmpty(t, first.Title)
	assert.NotEmpty(t, first.Snippet)
}

func TestSearcher_QuotaStopsLanguageCooperatively(t *testing.T) {
	profile := testProfile()
	isPortuguese := func(query string) bool {
		for _, section := range model.Sections() {
			if strings.HasPrefix(query, BuildQuery(profile, section, "lang_pt")) {
				return true
			}
		}
		return false
	}

	var ptCalls int
	fake := newFakeSearch(func(query string, _ int) ([]cse.Result, error) {
		if isPortuguese(query) {
			ptCalls++
			return nil, cse.ErrQuotaExhausted
		}
		return resultPage("en", 2), nil
	})
	capture := events.NewCaptureEmitter()
	s := New(fake, mustRules(t), capture, WithWorkers(1))

	results := s.Run(context.Background(), "client-1", profile, policy.Get(policy.KeyDefault))

	// The first Portuguese worker trips the gate; no other section issues
	// another Portuguese query.
	assert.Equal(t, 1, ptCalls)
	assert.Len(t, capture.Named("quota_exhausted"), 1)

	for _, section := range model.Sections() {
		r := results[section]
		assert.True(t, r.QuotaLimited, "section %s should be quota limited", section)
		assert.NotEmpty(t, r.Candidates, "section %s keeps its English results", section)
		for _, c := range r.Candidates {
			assert.Equal(t, "lang_en", c.Language)
		}
	}
}

func TestSearcher_AllowlistQueryFallsBackToPlain(t *testing.T) {
	fake := newFakeSearch(func(query string, _ int) ([]cse.Result, error) {
		if strings.Contains(query, "site:") {
			return nil, nil
		}
		return resultPage("plain", 1), nil
	})
	capture := events.NewCaptureEmitter()
	s := New(fake, mustRules(t), capture, WithWorkers(1))

	results := s.Run(context.Background(), "client-1", testProfile(), singleLanguagePolicy())

	require.Len(t, results[model.SectionMarket].Candidates, 1)

	var sawAllowlist, sawPlain bool
	plain := BuildQuery(testProfile(), model.SectionMarket, "lang_pt")
	for _, q := range fake.seen() {
		if strings.HasPrefix(q, plain) && strings.Contains(q, "site:") {
			sawAllowlist = true
		}
		if q == plain {
			sawPlain = true
		}
	}
	assert.True(t, sawAllowlist, "curated query should be tried first")
	assert.True(t, sawPlain, "plain query should be the fallback")
}

func TestSearcher_MergesDuplicateURLsAcrossLanguages(t *testing.T) {
	fake := newFakeSearch(func(_ string, _ int) ([]cse.Result, error) {
		return []cse.Result{{
			URL:   "https://valor.globo.com/economia/artigo?utm_source=x",
			Title: "Artigo",
		}}, nil
	})
	capture := events.NewCaptureEmitter()
	s := New(fake, mustRules(t), capture, WithWorkers(2))

	results := s.Run(context.Background(), "client-1", testProfile(), policy.Get(policy.KeyDefault))

	for _, section := range model.Sections() {
		assert.Len(t, results[section].Candidates, 1, "section %s", section)
	}
}

func TestSearcher_PersistentFailureDegradesToEmpty(t *testing.T) {
	fake := newFakeSearch(func(_ string, _ int) ([]cse.Result, error) {
		return nil, eris.New("cse: status 500")
	})
	capture := events.NewCaptureEmitter()
	s := New(fake, mustRules(t), capture, WithWorkers(1))

	results := s.Run(context.Background(), "client-1", testProfile(), singleLanguagePolicy())

	for _, section := range model.Sections() {
		r := results[section]
		assert.Empty(t, r.Candidates)
		assert.False(t, r.QuotaLimited)
	}
	assert.Empty(t, capture.Named("quota_exhausted"))
}
