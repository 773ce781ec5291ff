package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/model"
)

func TestParse_StrictJSON(t *testing.T) {
	text := `{"opportunities":[{"category":"trend","title":"Alta do delivery","rationale":"Timely","url":"https://example.com/a","score":82}]}`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.CategoryTrend, ops[0].Category)
	assert.Equal(t, "Alta do delivery", ops[0].Title)
	assert.Equal(t, "https://example.com/a", ops[0].URL)
	assert.Equal(t, 82, ops[0].Score)
	assert.Equal(t, model.SectionMarket, ops[0].Section)
}

func TestParse_MarkdownFence(t *testing.T) {
	text := "```json\n{\"opportunities\":[{\"category\":\"educational\",\"title\":\"Guia\",\"url\":\"https://example.com/b\",\"score\":70}]}\n```"

	ops, err := Parse(text, model.SectionTrends)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.CategoryEducational, ops[0].Category)
}

func TestParse_JSONEmbeddedInProse(t *testing.T) {
	text := `Here are the opportunities I found for this client:

{"opportunities":[{"category":"debate","title":"Vale a pena?","url":"https://example.com/c","score":60}]}

Let me know if you need anything else.`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "Vale a pena?", ops[0].Title)
}

func TestParse_TrailingCommas(t *testing.T) {
	text := `{"opportunities":[{"category":"trend","title":"Titulo","url":"https://example.com/d","score":50,},]}`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 1)
}

func TestParse_BracesInsideStrings(t *testing.T) {
	text := `Note: {"opportunities":[{"category":"trend","title":"Uso de {tags} no texto","url":"https://example.com/e","score":55}]} done`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "Uso de {tags} no texto", ops[0].Title)
}

func TestParse_URLShapes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "url as object",
			text: `{"opportunities":[{"category":"trend","title":"T","url":{"url":"https://example.com/obj"},"score":50}]}`,
			want: "https://example.com/obj",
		},
		{
			name: "url as href object",
			text: `{"opportunities":[{"category":"trend","title":"T","url":{"href":"https://example.com/href"},"score":50}]}`,
			want: "https://example.com/href",
		},
		{
			name: "url as array",
			text: `{"opportunities":[{"category":"trend","title":"T","url":["https://example.com/first","https://example.com/second"],"score":50}]}`,
			want: "https://example.com/first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := Parse(tt.text, model.SectionMarket)
			require.NoError(t, err)
			require.Len(t, ops, 1)
			assert.Equal(t, tt.want, ops[0].URL)
		})
	}
}

func TestParse_DropsEntriesWithoutURLOrTitle(t *testing.T) {
	text := `{"opportunities":[
		{"category":"trend","title":"","url":"https://example.com/a","score":50},
		{"category":"trend","title":"Sem link","url":null,"score":50},
		{"category":"trend","title":"Valido","url":"https://example.com/ok","score":50}
	]}`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "Valido", ops[0].Title)
}

func TestParse_ScoreClamping(t *testing.T) {
	text := `{"opportunities":[
		{"category":"trend","title":"Alto","url":"https://example.com/a","score":150},
		{"category":"trend","title":"Baixo","url":"https://example.com/b","score":-20}
	]}`

	ops, err := Parse(text, model.SectionMarket)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, 100, ops[0].Score)
	assert.Equal(t, 0, ops[1].Score)
}

func TestParse_Unrecoverable(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"prose only", "I could not find any relevant opportunities this week."},
		{"truncated json", `{"opportunities":[{"category":"trend","title":"Cut`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, model.SectionMarket)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unparseable output")
		})
	}
}

func TestExtractJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONBlock(`before {"a":1} after`))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSONBlock(`x {"a":{"b":2}} y`))
	assert.Equal(t, "", extractJSONBlock("no json here"))
	assert.Equal(t, "", extractJSONBlock(`{"never":"closed"`))
}
