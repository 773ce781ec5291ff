package linkcheck

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	headTimeout = 3 * time.Second
	getTimeout  = 6 * time.Second

	// browserUA avoids the bot blocks that a default Go user agent trips.
	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// maxBodyBytes bounds how much of a page is read for soft-404 checks.
	maxBodyBytes = 256 * 1024
)

// Validator checks URL liveness. It is deliberately permissive: only a
// confirmed 404 (hard or soft) counts as dead; timeouts and connection
// errors pass, since a slow site must not discard a good opportunity.
type Validator struct {
	http       *http.Client
	classifier Classifier
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *Validator) { v.http = c }
}

// WithClassifier overrides the soft-404 classifier.
func WithClassifier(c Classifier) ValidatorOption {
	return func(v *Validator) { v.classifier = c }
}

// NewValidator creates a Validator with the marker classifier.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		http:       &http.Client{},
		classifier: NewMarkerClassifier(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check classifies one URL. HEAD goes first with a short timeout; a GET
// follows because some sites answer HEAD with 200 and serve a soft-404
// page on GET.
func (v *Validator) Check(ctx context.Context, url string) Status {
	headStatus, headOK := v.request(ctx, http.MethodHead, url, headTimeout, nil)
	if headOK && isHardNotFound(headStatus) {
		return StatusHard404
	}

	var body []byte
	var finalURL string
	getStatus, getOK := v.request(ctx, http.MethodGet, url, getTimeout, func(resp *http.Response) {
		finalURL = resp.Request.URL.String()
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
	if getOK {
		if isHardNotFound(getStatus) {
			return StatusHard404
		}
		if v.classifier.IsSoft404(finalURL, body) {
			return StatusSoft404
		}
		return StatusLive
	}

	if headOK {
		// HEAD answered, GET did not. Presume the page exists.
		return StatusLive
	}
	return StatusUnreachable
}

func (v *Validator) request(ctx context.Context, method, url string, timeout time.Duration, onResponse func(*http.Response)) (int, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := v.http.Do(req)
	if err != nil {
		zap.L().Debug("link check request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return 0, false
	}
	defer resp.Body.Close()

	if onResponse != nil {
		onResponse(resp)
	}
	return resp.StatusCode, true
}

func isHardNotFound(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}
