package linkcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkerClassifier(t *testing.T) {
	c := NewMarkerClassifier()

	tests := []struct {
		name     string
		finalURL string
		body     string
		want     bool
	}{
		{
			name:     "portuguese not found title",
			finalURL: "https://example.com/sumiu",
			body:     "<html><head><title>Página não encontrada - Example</title></head><body></body></html>",
			want:     true,
		},
		{
			name:     "portuguese not found without accents",
			finalURL: "https://example.com/sumiu",
			body:     "<html><body><h1>Pagina nao encontrada</h1></body></html>",
			want:     true,
		},
		{
			name:     "english not found body",
			finalURL: "https://example.com/gone",
			body:     "<html><body>Sorry, page not found.</body></html>",
			want:     true,
		},
		{
			name:     "linkedin trk marker in url",
			finalURL: "https://www.linkedin.com/pulse/?trk=article_not_found",
			body:     "",
			want:     true,
		},
		{
			name:     "linkedin not found body",
			finalURL: "https://www.linkedin.com/pulse/some-post",
			body:     "<html><body>We can't find the page you're looking for</body></html>",
			want:     true,
		},
		{
			name:     "healthy article",
			finalURL: "https://example.com/artigo",
			body:     "<html><head><title>Alta do trigo no Brasil</title></head><body>Conteúdo do artigo completo aqui.</body></html>",
			want:     false,
		},
		{
			name:     "empty body",
			finalURL: "https://example.com/x",
			body:     "",
			want:     false,
		},
		{
			name:     "trk marker on non-linkedin site ignored",
			finalURL: "https://example.com/page?trk=article_not_found",
			body:     "<html><body>Real content</body></html>",
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsSoft404(tt.finalURL, []byte(tt.body)))
		})
	}
}
