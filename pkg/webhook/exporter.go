// Package webhook posts run summaries to an HTTP endpoint, either as the
// plain results.json document or shaped for PagerDuty or Opsgenie.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

// Format selects the webhook payload format.
type Format string

const (
	FormatGeneric   Format = "generic"
	FormatPagerDuty Format = "pagerduty"
	FormatOpsgenie  Format = "opsgenie"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Harness-Signature"

const (
	defaultTimeoutMS = 5000
	defaultAttempts  = 3
	userAgent        = "spec-cpu-harness/webhook"
)

// ParseFormat maps a configured format name to a Format; unknown names fall
// back to the generic JSON payload.
func ParseFormat(name string) Format {
	switch Format(name) {
	case FormatPagerDuty, FormatOpsgenie:
		return Format(name)
	}
	return FormatGeneric
}

// Exporter delivers run summaries to one endpoint.
type Exporter struct {
	URL    string
	Secret string
	Format Format
	// Attempts bounds deliveries of one summary; server errors are retried,
	// client errors are not.
	Attempts int
	// Backoff is the wait before the second attempt and doubles afterwards.
	Backoff time.Duration

	client *http.Client
}

// New returns an exporter with a per-request timeout of timeoutMS.
func New(url, secret string, format Format, timeoutMS int) *Exporter {
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}
	if format == "" {
		format = FormatGeneric
	}
	return &Exporter{
		URL:      url,
		Secret:   secret,
		Format:   format,
		Attempts: defaultAttempts,
		Backoff:  time.Second,
		client:   &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond},
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook endpoint returned HTTP %d", e.Code)
}

// Retryable reports whether the endpoint may accept the same payload later.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// Send posts summary, retrying server errors until Attempts is exhausted or
// ctx is done.
func (e *Exporter) Send(ctx context.Context, summary schema.RunSummary) error {
	body, err := e.encode(summary)
	if err != nil {
		return fmt.Errorf("build webhook payload: %w", err)
	}

	attempts := e.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := e.Backoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		}

		lastErr = e.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var status *StatusError
		if errors.As(lastErr, &status) && !status.Retryable() {
			return lastErr
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempts, lastErr)
}

func (e *Exporter) encode(summary schema.RunSummary) ([]byte, error) {
	switch e.Format {
	case FormatPagerDuty:
		return BuildPagerDutyPayload(summary)
	case FormatOpsgenie:
		return BuildOpsgeniePayload(summary)
	}
	return json.Marshal(summary)
}

func (e *Exporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if e.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, e.Secret))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
