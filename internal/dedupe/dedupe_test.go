package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
)

func TestCollapseKeepsHighestScore(t *testing.T) {
	candidates := []model.SourceCandidate{
		{URL: "https://example.com/a", Domain: "example.com", Path: "/a", Score: 60, Section: model.SectionMarket},
		{URL: "https://www.example.com/a?utm_source=x", Domain: "example.com", Path: "/a", Score: 85, Section: model.SectionTrends},
		{URL: "https://other.com/b", Domain: "other.com", Path: "/b", Score: 70, Section: model.SectionMarket},
	}

	out := Collapse(candidates)
	require.Len(t, out, 2)
	assert.Equal(t, 85, out[0].Score)
	assert.Equal(t, "example.com", out[0].Domain)
	assert.Equal(t, "other.com", out[1].Domain)
}

func TestCollapseTieKeepsFirst(t *testing.T) {
	candidates := []model.SourceCandidate{
		{Domain: "example.com", Path: "/a", Score: 80, Origin: model.OriginAllowlist},
		{Domain: "example.com", Path: "/a", Score: 80, Origin: model.OriginRaw},
	}

	out := Collapse(candidates)
	require.Len(t, out, 1)
	assert.Equal(t, model.OriginAllowlist, out[0].Origin)
}

func TestCollapsePreservesOrder(t *testing.T) {
	candidates := []model.SourceCandidate{
		{Domain: "a.com", Path: "/1", Score: 50},
		{Domain: "b.com", Path: "/2", Score: 90},
		{Domain: "c.com", Path: "/3", Score: 70},
	}

	out := Collapse(candidates)
	require.Len(t, out, 3)
	assert.Equal(t, "a.com", out[0].Domain)
	assert.Equal(t, "b.com", out[1].Domain)
	assert.Equal(t, "c.com", out[2].Domain)
}

func TestFilterSeenDropsRecentHistory(t *testing.T) {
	now := time.Now().UTC()

	// example.com/a went out two weeks ago; with a four week lookback it
	// is excluded even though the domain differs only by path elsewhere.
	recent := map[string]time.Time{
		history.EntryKey("example.com", "/a"): now.AddDate(0, 0, -14),
	}

	candidates := []model.SourceCandidate{
		{Domain: "example.com", Path: "/a", Score: 90},
		{Domain: "example.com", Path: "/fresh", Score: 60},
	}

	out := FilterSeen(candidates, recent)
	require.Len(t, out, 1)
	assert.Equal(t, "/fresh", out[0].Path)
}

func TestFilterSeenEmptyHistory(t *testing.T) {
	candidates := []model.SourceCandidate{{Domain: "example.com", Path: "/a"}}
	out := FilterSeen(candidates, nil)
	assert.Equal(t, candidates, out)
}

func TestLookbackSince(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		weeks int
		want  time.Time
	}{
		{"four weeks", 4, now.AddDate(0, 0, -28)},
		{"six weeks", 6, now.AddDate(0, 0, -42)},
		{"zero falls back to four", 0, now.AddDate(0, 0, -28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookbackSince(now, tt.weeks))
		})
	}
}
