// Package linkcheck validates synthesized URLs and recovers fabricated
// ones by matching them back to real search candidates.
package linkcheck

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Status classifies a checked URL.
type Status string

const (
	StatusLive        Status = "live"
	StatusHard404     Status = "hard_404"
	StatusSoft404     Status = "soft_404"
	StatusUnreachable Status = "unreachable"
)

// Classifier decides whether a 200-status page is actually a not-found
// page. The heuristics are site-dependent, so the validator takes it as an
// interface.
type Classifier interface {
	IsSoft404(finalURL string, body []byte) bool
}

// MarkerClassifier detects soft-404s through known not-found markers in the
// page title and body text.
type MarkerClassifier struct{}

// NewMarkerClassifier returns the default classifier.
func NewMarkerClassifier() *MarkerClassifier { return &MarkerClassifier{} }

// genericMarkers flag a not-found page on any site. Kept narrow to avoid
// false positives on articles that merely discuss errors.
var genericMarkers = []string{
	"página não encontrada",
	"pagina nao encontrada",
	"page not found",
	"conteúdo não encontrado",
}

// linkedinMarkers apply only to linkedin.com, which serves its not-found
// page with status 200.
var linkedinMarkers = []string{
	"we can't find the page you're looking for",
	"we can’t find the page you’re looking for",
}

func (c *MarkerClassifier) IsSoft404(finalURL string, body []byte) bool {
	if strings.Contains(finalURL, "linkedin.com") {
		// LinkedIn Pulse redirects dead articles here with status 200.
		if strings.Contains(finalURL, "trk=article_not_found") {
			return true
		}
		low := strings.ToLower(string(body))
		for _, marker := range linkedinMarkers {
			if strings.Contains(low, marker) {
				return true
			}
		}
	}

	if len(body) == 0 {
		return false
	}

	title := extractTitle(body)
	for _, marker := range genericMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}

	low := strings.ToLower(string(body))
	for _, marker := range genericMarkers {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}

// extractTitle pulls the lowercased <title> text from an HTML body.
// Returns "" for unparseable input.
func extractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
}
