// Package cse provides a client for the Google Custom Search JSON API.
package cse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/resilience"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// maxPageSize is the API's hard cap on results per request.
const maxPageSize = 10

// ErrQuotaExhausted signals the API rejected the request for quota reasons
// (HTTP 429, or 403 with a quotaExceeded body). Callers treat it as a
// degraded condition: stop paginating, keep what was already fetched.
var ErrQuotaExhausted = eris.New("cse: search quota exhausted")

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error)
}

// Result is a single search result.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchOption configures a single search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	num      int
	start    int
	language string
	geo      string
}

// WithNum sets the number of results requested (clamped to the API max of 10).
func WithNum(n int) SearchOption {
	return func(o *searchOpts) { o.num = n }
}

// WithStart sets the 1-based result offset for pagination (1, 11, 21, ...).
func WithStart(start int) SearchOption {
	return func(o *searchOpts) { o.start = start }
}

// WithLanguage restricts results to a language (lr code, e.g. "lang_pt").
func WithLanguage(lr string) SearchOption {
	return func(o *searchOpts) { o.language = lr }
}

// WithGeo sets the geolocation bias (gl code, e.g. "br").
func WithGeo(gl string) SearchOption {
	return func(o *searchOpts) { o.geo = gl }
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithLimiter overrides the default adaptive rate limiter.
func WithLimiter(l *AdaptiveLimiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

type httpClient struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
	limiter  *AdaptiveLimiter
	retry    resilience.RetryConfig
}

// NewClient creates a Custom Search client. The API allows 10 queries/second;
// the limiter starts at half that and adapts to observed 429s.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: NewAdaptiveLimiter(5, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("cse", "search")
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Items []searchItem `json:"items"`
	Error *apiError    `json:"error"`
}

type searchItem struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	o := searchOpts{num: maxPageSize, start: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.num <= 0 || o.num > maxPageSize {
		o.num = maxPageSize
	}
	if o.start <= 0 {
		o.start = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "cse: rate limit wait")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Result, error) {
		return c.doSearch(ctx, query, o)
	})
}

func (c *httpClient) doSearch(ctx context.Context, query string, o searchOpts) ([]Result, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(o.num))
	params.Set("start", strconv.Itoa(o.start))
	if o.language != "" {
		params.Set("lr", o.language)
	}
	if o.geo != "" {
		params.Set("gl", o.geo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "cse: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cse: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cse: read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.OnRateLimit()
		return nil, ErrQuotaExhausted
	case resp.StatusCode == http.StatusForbidden && strings.Contains(string(body), "quotaExceeded"):
		// Daily quota surfaces as 403 with a quotaExceeded reason.
		return nil, ErrQuotaExhausted
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("cse: status %d: %s", resp.StatusCode, truncate(body, 200)),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("cse: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "cse: unmarshal response")
	}

	c.limiter.OnSuccess()

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
