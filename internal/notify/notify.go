// Package notify hands finished digests to their delivery channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/resilience"
)

// Notifier delivers a finished digest. An error means the digest was NOT
// handed off; the orchestrator must not record history for it.
type Notifier interface {
	Send(ctx context.Context, payload *model.DigestPayload) error
}

// WebhookNotifier posts the digest JSON to a configured endpoint.
type WebhookNotifier struct {
	url   string
	http  *http.Client
	retry resilience.RetryConfig
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.http = hc }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) WebhookOption {
	return func(n *WebhookNotifier) { n.retry = cfg }
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:   url,
		http:  &http.Client{Timeout: 30 * time.Second},
		retry: resilience.DefaultRetryConfig(),
	}
	n.retry.OnRetry = resilience.RetryLogger("notify", "webhook")
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *WebhookNotifier) Send(ctx context.Context, payload *model.DigestPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal digest")
	}

	err = resilience.Do(ctx, n.retry, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
	if err != nil {
		return eris.Wrapf(err, "notify: deliver digest for client %s", payload.ClientID)
	}

	zap.L().Info("digest delivered",
		zap.String("client", payload.ClientID),
		zap.String("week", payload.Week),
		zap.Int("sections", len(payload.Sections)),
		zap.Int("opportunities", len(payload.Opportunities())),
	)
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := eris.Errorf("notify: webhook status %d: %s", resp.StatusCode, string(respBody))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return statusErr
}

// NopNotifier logs the digest instead of delivering it. Used for dry runs.
type NopNotifier struct{}

func (NopNotifier) Send(_ context.Context, payload *model.DigestPayload) error {
	zap.L().Info("dry run, digest not delivered",
		zap.String("client", payload.ClientID),
		zap.String("week", payload.Week),
		zap.Int("opportunities", len(payload.Opportunities())),
	)
	return nil
}
