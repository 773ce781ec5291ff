package synthesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/model"
)

func TestBuildSectionPrompt(t *testing.T) {
	profile := model.ClientProfile{
		ID:             "client-7",
		Name:           "Padaria Central",
		Specialization: "bakery",
		Description:    "Traditional bakery in São Paulo",
		Audience:       "neighborhood families",
	}
	candidates := []model.SourceCandidate{
		{Title: "Alta do trigo", URL: "https://example.com/trigo", Snippet: "Preço do trigo sobe 12%"},
		{Title: "Tendência de pães artesanais", URL: "https://example.com/paes"},
	}

	prompt := BuildSectionPrompt(profile, model.SectionMarket, candidates, []string{"preço da farinha"})

	assert.Contains(t, prompt, "Padaria Central")
	assert.Contains(t, prompt, "bakery")
	assert.Contains(t, prompt, "https://example.com/trigo")
	assert.Contains(t, prompt, "Preço do trigo sobe 12%")
	assert.Contains(t, prompt, "https://example.com/paes")
	assert.Contains(t, prompt, "preço da farinha")
	assert.Contains(t, prompt, "Do NOT repeat")
	assert.Contains(t, prompt, `"opportunities"`)
}

func TestBuildSectionPrompt_NoExcludedTopics(t *testing.T) {
	prompt := BuildSectionPrompt(model.ClientProfile{Name: "X"}, model.SectionTrends, nil, nil)
	assert.NotContains(t, prompt, "Do NOT repeat")
}

func TestSystemPromptStableForCaching(t *testing.T) {
	// The system prompt must not vary per client, or the prompt cache
	// never gets a hit across a batch run.
	assert.Equal(t, SystemPrompt(), SystemPrompt())
	assert.NotContains(t, SystemPrompt(), "%s")
}

func TestBorrowForAudience(t *testing.T) {
	bySection := map[model.Section][]model.SourceCandidate{
		model.SectionAudience: {
			{Domain: "a.com", Path: "/1", Score: 50, Section: model.SectionAudience},
		},
		model.SectionMarket: {
			{Domain: "m.com", Path: "/hi", Score: 90, Section: model.SectionMarket},
			{Domain: "m.com", Path: "/lo", Score: 40, Section: model.SectionMarket},
		},
		model.SectionTrends: {
			{Domain: "t.com", Path: "/mid", Score: 70, Section: model.SectionTrends},
		},
	}

	out := BorrowForAudience(bySection, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "a.com", out[0].Domain)
	// Borrowed candidates arrive best-first and are relabeled.
	assert.Equal(t, "m.com", out[1].Domain)
	assert.Equal(t, "/hi", out[1].Path)
	assert.Equal(t, model.SectionAudience, out[1].Section)
	assert.Equal(t, "t.com", out[2].Domain)
}

func TestBorrowForAudience_AlreadyCovered(t *testing.T) {
	bySection := map[model.Section][]model.SourceCandidate{
		model.SectionAudience: {
			{Domain: "a.com", Path: "/1"},
			{Domain: "a.com", Path: "/2"},
			{Domain: "b.com", Path: "/3"},
		},
		model.SectionMarket: {
			{Domain: "m.com", Path: "/x", Score: 99},
		},
	}

	out := BorrowForAudience(bySection, 3)
	assert.Len(t, out, 3)
	for _, c := range out {
		assert.NotEqual(t, "m.com", c.Domain)
	}
}

func TestBorrowForAudience_SkipsDuplicates(t *testing.T) {
	bySection := map[model.Section][]model.SourceCandidate{
		model.SectionAudience: {
			{Domain: "shared.com", Path: "/same", Score: 50},
		},
		model.SectionMarket: {
			{Domain: "shared.com", Path: "/same", Score: 95},
			{Domain: "fresh.com", Path: "/new", Score: 60},
		},
	}

	out := BorrowForAudience(bySection, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "fresh.com", out[1].Domain)
}

func TestSectionFocusCoversAllSections(t *testing.T) {
	for _, section := range model.Sections() {
		focus, ok := sectionFocus[section]
		assert.True(t, ok, "missing focus for section %s", section)
		assert.False(t, strings.TrimSpace(focus) == "")
	}
}
