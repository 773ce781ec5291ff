package linkcheck

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/urlkey"
)

// minTitleOverlap is the token overlap ratio required to accept a
// title-similarity recovery.
const minTitleOverlap = 0.5

// Recover tries to match a possibly fabricated URL back to a real search
// candidate. The ladder runs strict to loose: exact match, query-stripped
// containment, then same-domain title similarity. When nothing matches the
// original URL is returned unchanged and liveness validation decides its
// fate.
func Recover(modelURL, title string, candidates []model.SourceCandidate) (string, bool) {
	generated := strings.ToLower(strings.TrimSpace(modelURL))
	if generated == "" {
		return modelURL, false
	}

	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.URL)) == generated {
			return c.URL, true
		}
	}

	// The model often invents query parameters on a real path, or strips
	// real ones. Compare without the query string, both directions.
	genClean := stripQuery(generated)
	for _, c := range candidates {
		realClean := stripQuery(strings.ToLower(c.URL))
		if realClean == "" || genClean == "" {
			continue
		}
		if strings.Contains(genClean, realClean) || strings.Contains(realClean, genClean) {
			return c.URL, true
		}
	}

	if title != "" {
		genDomain := urlkey.Domain(modelURL)
		for _, c := range candidates {
			if genDomain != "" && c.Domain != genDomain {
				continue
			}
			if titleSimilarity(title, c.Title) >= minTitleOverlap {
				return c.URL, true
			}
		}
	}

	return modelURL, false
}

func stripQuery(url string) string {
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		return url[:idx]
	}
	return url
}

// titleSimilarity computes token overlap between two titles after accent
// folding, as the fraction of the smaller title's tokens found in the
// larger one.
func titleSimilarity(a, b string) float64 {
	tokensA := titleTokens(a)
	tokensB := titleTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	if len(tokensB) < len(tokensA) {
		tokensA, tokensB = tokensB, tokensA
	}

	larger := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		larger[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range tokensA {
		if _, ok := larger[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(tokensA))
}

// titleTokens lowercases, folds accents and splits a title into word
// tokens, dropping single-character noise.
func titleTokens(title string) []string {
	folded := foldAccents(strings.ToLower(title))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// foldAccents strips combining marks so "notícia" and "noticia" compare
// equal. Portuguese titles arrive in both forms.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
