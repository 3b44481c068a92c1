// Package notify delivers "video transferred" notifications to a downstream
// webhook with bounded retry.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/backoff"
)

const (
	// DefaultMaxAttempts is the total number of POSTs per payload.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the first backoff delay; it doubles after each
	// failed attempt and is not applied after the final one.
	DefaultBaseDelay = 2 * time.Second

	// DefaultTimeout bounds each attempt independently of the backoff.
	DefaultTimeout = 30 * time.Second

	userAgent = "channel-video-relay/1.0"
)

// DeliveryError is returned once every attempt for a payload has failed.
// LastStatus is 0 when the final attempt failed before a response arrived.
type DeliveryError struct {
	URL        string
	VideoURL   string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s failed after %d attempt(s): %v", e.VideoURL, e.URL, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Notifier POSTs payloads to one webhook URL.
type Notifier struct {
	httpClient        *http.Client
	url               string
	maxAttempts       int
	baseDelay         time.Duration
	timeout           time.Duration
	retryClientErrors bool
	sleep             backoff.SleepFunc
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(c *Notifier) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay overrides DefaultBaseDelay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Notifier) { c.baseDelay = d }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Notifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Notifier) { c.httpClient = hc }
}

// WithRetryClientErrors controls whether 4xx responses other than 408 and
// 429 are retried. The default is true: every non-2xx status is retried.
func WithRetryClientErrors(retry bool) Option {
	return func(c *Notifier) { c.retryClientErrors = retry }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn backoff.SleepFunc) Option {
	return func(c *Notifier) { c.sleep = fn }
}

// New creates a Notifier for url.
func New(url string, opts ...Option) *Notifier {
	n := &Notifier{
		httpClient:        &http.Client{},
		url:               url,
		maxAttempts:       DefaultMaxAttempts,
		baseDelay:         DefaultBaseDelay,
		timeout:           DefaultTimeout,
		retryClientErrors: true,
		sleep:             backoff.Sleep,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers p, retrying with exponential backoff. It returns a
// *DeliveryError only after all attempts failed.
func (n *Notifier) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{URL: n.url, VideoURL: p.VideoURL, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	log.Info().Str("videoUrl", p.VideoURL).Msg("Sending webhook")

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		attempts = attempt
		status, err := n.post(ctx, body)
		if err == nil {
			log.Info().Str("videoUrl", p.VideoURL).Int("status", status).Int("attempt", attempt).Msg("Webhook delivered")
			return nil
		}
		lastErr, lastStatus = err, status

		if ctx.Err() != nil || !n.retryable(status) || attempt == n.maxAttempts {
			break
		}

		delay := backoff.Exponential(n.baseDelay, attempt-1)
		log.Warn().
			Err(err).
			Str("videoUrl", p.VideoURL).
			Int("attempt", attempt).
			Int("maxAttempts", n.maxAttempts).
			Dur("retryIn", delay).
			Msg("Webhook attempt failed, retrying")
		if err := n.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	derr := &DeliveryError{URL: n.url, VideoURL: p.VideoURL, Attempts: attempts, LastStatus: lastStatus, Err: lastErr}
	log.Error().Err(derr).Str("videoUrl", p.VideoURL).Msg("Webhook delivery failed")
	return derr
}

// post sends one attempt and returns the response status (0 on transport
// failure). Any non-2xx status is an error.
func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp.StatusCode, nil
}

func (n *Notifier) retryable(status int) bool {
	if status == 0 || n.retryClientErrors {
		return true
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// BatchResult reports per-payload outcomes of NotifyBatch. Errors is
// aligned with the input; nil entries succeeded.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// NotifyBatch delivers every payload concurrently, each with its own retry
// budget. The result is always populated; the error is non-nil iff at least
// one payload failed.
func (n *Notifier) NotifyBatch(ctx context.Context, payloads []Payload) (BatchResult, error) {
	log.Info().Int("count", len(payloads)).Msg("Sending webhooks")

	res := BatchResult{Errors: make([]error, len(payloads))}
	var wg sync.WaitGroup
	for i, p := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Errors[i] = n.Notify(ctx, p)
		}()
	}
	wg.Wait()

	var failed []error
	for _, err := range res.Errors {
		if err != nil {
			failed = append(failed, err)
		}
	}
	res.Failed = len(failed)
	res.Succeeded = len(payloads) - res.Failed

	log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("Webhooks completed")
	if res.Failed > 0 {
		return res, fmt.Errorf("%d out of %d webhooks failed: %w", res.Failed, len(payloads), errors.Join(failed...))
	}
	return res, nil
}
