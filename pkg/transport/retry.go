// Package transport provides resilient HTTP transports for data-plane
// clients: bounded retries with exponential backoff for transient failures,
// and a circuit breaker that fast-fails while an endpoint stays unhealthy.
// Both compose under the authentication handler as its base transport.
package transport

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

var (
	// ErrRetriesExhausted wraps the last failure after all attempts.
	ErrRetriesExhausted = errors.New("transport: retry attempts exhausted")

	// ErrCircuitOpen is returned without sending when the breaker is open.
	ErrCircuitOpen = errors.New("transport: circuit is open")
)

// RetryConfig tunes the backoff schedule.
type RetryConfig struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// MaxAttempts bounds total attempts, the first try included.
	MaxAttempts int

	// Jitter is the random fraction (0-1) added to each delay.
	Jitter float64
}

// DefaultRetryConfig returns the schedule used when none is set: four
// attempts starting at 250ms, doubling up to 8s, with 20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  4,
		Jitter:       0.2,
	}
}

// RetryPolicy reports whether an attempt outcome is worth retrying.
// Exactly one of resp and err is set.
type RetryPolicy func(resp *http.Response, err error) bool

// DefaultRetryPolicy retries transport-level errors and the transient
// status codes 429, 502, 503 and 504. Authentication responses (401) are
// never retried here; the handshake above owns that retry.
func DefaultRetryPolicy(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Transport is an http.RoundTripper that retries transient failures.
type Transport struct {
	base    http.RoundTripper
	cfg     RetryConfig
	policy  RetryPolicy
	breaker *CircuitBreaker
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying transport. Defaults to
// http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithRetryConfig overrides the backoff schedule.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(t *Transport) { t.cfg = cfg }
}

// WithRetryPolicy overrides the retry classification.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(t *Transport) {
		if p != nil {
			t.policy = p
		}
	}
}

// WithCircuitBreaker guards every attempt with the given breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(t *Transport) { t.breaker = cb }
}

// New creates a retrying transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		base:   http.DefaultTransport,
		cfg:    DefaultRetryConfig(),
		policy: DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.MaxAttempts <= 0 {
		t.cfg.MaxAttempts = 1
	}
	return t
}

// RoundTrip implements http.RoundTripper. Requests with a body are retried
// only when GetBody is set; the enclosing handler buffers bodies, so that
// holds for every protected request.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	maxAttempts := t.cfg.MaxAttempts
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxAttempts = 1
	}

	var lastErr error
	delay := t.cfg.InitialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if req.Body != nil && req.Body != http.NoBody {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("transport: rewind request body: %w", err)
				}
				req.Body = body
			}

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.jittered(delay)):
			}
			delay = time.Duration(float64(delay) * t.cfg.Multiplier)
			if delay > t.cfg.MaxDelay {
				delay = t.cfg.MaxDelay
			}
		}

		resp, err := t.send(req)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) || !t.policy(nil, err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !t.policy(resp, nil) || attempt == maxAttempts {
			return resp, nil
		}

		// Retryable status: release the connection before backing off.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("transport: status %d", resp.StatusCode)
	}

	return nil, errors.Join(ErrRetriesExhausted, lastErr)
}

func (t *Transport) send(req *http.Request) (*http.Response, error) {
	if t.breaker == nil {
		return t.base.RoundTrip(req)
	}
	var resp *http.Response
	err := t.breaker.Execute(func() error {
		var err error
		resp, err = t.base.RoundTrip(req)
		return err
	})
	return resp, err
}

func (t *Transport) jittered(delay time.Duration) time.Duration {
	if t.cfg.Jitter <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Float64()*t.cfg.Jitter*float64(delay))
}
