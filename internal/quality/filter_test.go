package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/events"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/policy"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

func newTestFilter(t *testing.T) (*Filter, *events.CaptureEmitter) {
	t.Helper()
	rules, err := DefaultRules()
	require.NoError(t, err)
	emitter := events.NewCaptureEmitter()
	return NewFilter(rules, emitter), emitter
}

func TestFilterRejectsDeniedPathRegardlessOfDomain(t *testing.T) {
	f, emitter := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	// valor.globo.com carries the highest curated score in the market
	// allowlist, but a tag listing is still rejected.
	candidates := []model.SourceCandidate{
		{URL: "https://example.com/tag/marketing", Title: "Marketing posts"},
		{URL: "https://valor.globo.com/tag/economia", Title: "Economia posts"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	assert.Empty(t, admitted)

	evs := emitter.Named("section_metrics")
	require.Len(t, evs, 1)
	metrics := evs[0].(events.SectionMetrics)
	assert.Equal(t, 2, metrics.Raw)
	assert.Equal(t, 2, metrics.Denied)
	assert.Equal(t, 0, metrics.Admitted)
}

func TestFilterAllowlistOrigin(t *testing.T) {
	f, _ := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	candidates := []model.SourceCandidate{
		{URL: "https://valor.globo.com/empresas/noticia/2026/08/alta-do-setor", Title: "Alta do setor de servicos em 2026"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	require.Len(t, admitted, 1)
	assert.Equal(t, model.OriginAllowlist, admitted[0].Origin)
	assert.Equal(t, 95, admitted[0].Score)
	assert.Equal(t, "valor.globo.com", admitted[0].Domain)
	assert.Equal(t, model.SectionMarket, admitted[0].Section)
}

func TestFilterHeuristicScoring(t *testing.T) {
	tests := []struct {
		name     string
		cand     model.SourceCandidate
		minScore int
		maxScore int
	}{
		{
			name:     "deep dated gov.br article",
			cand:     model.SourceCandidate{URL: "https://economia.gov.br/noticias/2026/08/relatorio-mensal", Title: "Relatorio mensal de atividade economica"},
			minScore: 90,
			maxScore: 100,
		},
		{
			name:     "shallow untitled page",
			cand:     model.SourceCandidate{URL: "https://blog.example.com/", Title: "Oi"},
			minScore: 0,
			maxScore: 49,
		},
		{
			name:     "ordinary blog post",
			cand:     model.SourceCandidate{URL: "https://blog.example.com/posts/como-crescer-no-mercado", Title: "Como crescer no mercado local"},
			minScore: 50,
			maxScore: 80,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := heuristicScore(withKeyFields(tt.cand))
			assert.GreaterOrEqual(t, score, tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore)
		})
	}
}

func TestFilterFallbackAdmissionBoundedByCoverage(t *testing.T) {
	f, _ := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]
	min := pol.MinSelected(model.SectionMarket)

	// Only low-scoring candidates: fallback fills up to the coverage
	// minimum, highest score first, and no further.
	candidates := []model.SourceCandidate{
		{URL: "https://a.example.com/", Title: "a"},
		{URL: "https://b.example.com/", Title: "b"},
		{URL: "https://c.example.com/", Title: "c"},
		{URL: "https://d.example.com/", Title: "d"},
		{URL: "https://e.example.com/", Title: "e"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	require.Len(t, admitted, min)
	for _, c := range admitted {
		assert.Equal(t, model.OriginFallback, c.Origin)
	}
}

func TestFilterFallbackSkippedWhenCoverageMet(t *testing.T) {
	f, _ := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	candidates := []model.SourceCandidate{
		{URL: "https://valor.globo.com/a/noticia", Title: "Noticia um do mercado"},
		{URL: "https://exame.com/b/noticia", Title: "Noticia dois do mercado"},
		{URL: "https://infomoney.com.br/c/noticia", Title: "Noticia tres do mercado"},
		{URL: "https://weak.example.com/", Title: "x"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	require.GreaterOrEqual(t, len(admitted), pol.MinSelected(model.SectionMarket))
	for _, c := range admitted {
		assert.NotEqual(t, model.OriginFallback, c.Origin)
	}
}

func TestFilterPerDomainCap(t *testing.T) {
	f, _ := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	candidates := []model.SourceCandidate{
		{URL: "https://valor.globo.com/noticia/um", Title: "Noticia um do mercado"},
		{URL: "https://valor.globo.com/noticia/dois", Title: "Noticia dois do mercado"},
		{URL: "https://valor.globo.com/noticia/tres", Title: "Noticia tres do mercado"},
		{URL: "https://exame.com/noticia/quatro", Title: "Noticia quatro do mercado"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	perDomain := map[string]int{}
	for _, c := range admitted {
		perDomain[c.Domain]++
	}
	assert.Equal(t, 2, perDomain["valor.globo.com"])
	assert.Equal(t, 1, perDomain["exame.com"])
}

func TestFilterSortedByScoreDescending(t *testing.T) {
	f, _ := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	candidates := []model.SourceCandidate{
		{URL: "https://g1.globo.com/noticia/um", Title: "Noticia um do mercado"},
		{URL: "https://valor.globo.com/noticia/dois", Title: "Noticia dois do mercado"},
		{URL: "https://terra.com.br/noticia/tres", Title: "Noticia tres do mercado"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	require.Len(t, admitted, 3)
	for i := 1; i < len(admitted); i++ {
		assert.GreaterOrEqual(t, admitted[i-1].Score, admitted[i].Score)
	}
	assert.Equal(t, "valor.globo.com", admitted[0].Domain)
}

func TestFilterLowAllowlistRatioEvent(t *testing.T) {
	f, emitter := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	// Strong heuristic candidates but nothing curated: ratio is 0.
	candidates := []model.SourceCandidate{
		{URL: "https://www.gov.br/economia/2026/08/relatorio-um", Title: "Relatorio de atividade economica um"},
		{URL: "https://portal.edu.br/pesquisa/2026/08/estudo-dois", Title: "Estudo sobre consumo regional dois"},
		{URL: "https://noticias.org.br/2026/08/analise-tres", Title: "Analise do mercado de servicos tres"},
	}

	admitted := f.Filter("client-1", model.SectionMarket, candidates, pol)
	require.NotEmpty(t, admitted)

	evs := emitter.Named("low_allowlist_ratio")
	require.Len(t, evs, 1)
	ev := evs[0].(events.LowAllowlistRatio)
	assert.Equal(t, 0.0, ev.Ratio)
	assert.Equal(t, pol.MinAllowlistRatio, ev.Threshold)
}

func TestFilterNoRatioEventWithoutAllowlist(t *testing.T) {
	f, emitter := newTestFilter(t)
	pol := policy.Registry()[policy.KeyDefault]

	// Seasonality has no curated allowlist, so the ratio signal is
	// meaningless and must stay silent.
	candidates := []model.SourceCandidate{
		{URL: "https://calendario.example.com/2026/08/datas-comemorativas", Title: "Datas comemorativas de setembro no varejo"},
	}

	f.Filter("client-1", model.SectionSeasonality, candidates, pol)
	assert.Empty(t, emitter.Named("low_allowlist_ratio"))
}

// withKeyFields fills Domain and Path the way Filter does before scoring.
func withKeyFields(c model.SourceCandidate) model.SourceCandidate {
	c.Domain = urlkey.Domain(c.URL)
	c.Path = urlkey.Path(c.URL)
	return c
}
