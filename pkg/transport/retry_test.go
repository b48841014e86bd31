package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps test backoff in the microsecond range.
var fastRetry = RetryConfig{
	InitialDelay: time.Microsecond,
	MaxDelay:     10 * time.Microsecond,
	Multiplier:   2.0,
	MaxAttempts:  3,
	Jitter:       0,
}

type stubTransport struct {
	calls   atomic.Int32
	outcome func(attempt int32, req *http.Request) (*http.Response, error)
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.outcome(s.calls.Add(1), req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
}

func statusResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestRoundTrip_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return okResponse(), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if stub.calls.Load() != 1 {
		t.Fatalf("calls = %d", stub.calls.Load())
	}
}

func TestRoundTrip_RetriesTransientStatus(t *testing.T) {
	stub := &stubTransport{outcome: func(attempt int32, _ *http.Request) (*http.Response, error) {
		if attempt < 3 {
			return statusResponse(http.StatusServiceUnavailable), nil
		}
		return okResponse(), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if stub.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", stub.calls.Load())
	}
}

func TestRoundTrip_ReturnsFinalStatusWhenExhausted(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusBadGateway), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	// The last attempt's response comes back, not an error: the caller
	// gets to see what the endpoint actually said.
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if stub.calls.Load() != int32(fastRetry.MaxAttempts) {
		t.Fatalf("calls = %d", stub.calls.Load())
	}
}

func TestRoundTrip_ExhaustedOnErrors(t *testing.T) {
	transient := errors.New("connection reset")
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return nil, transient
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	_, err := rt.RoundTrip(req)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, transient) {
		t.Fatalf("err = %v, does not carry the last failure", err)
	}
}

func TestRoundTrip_NoRetryOn401(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusUnauthorized), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	// The challenge handshake above owns 401 handling.
	if stub.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls.Load())
	}
}

func TestRoundTrip_RewindsBody(t *testing.T) {
	var bodies []string
	stub := &stubTransport{outcome: func(attempt int32, req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(data))
		if attempt == 1 {
			return statusResponse(http.StatusServiceUnavailable), nil
		}
		return okResponse(), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	payload := []byte(`{"value":"v"}`)
	req, _ := http.NewRequest(http.MethodPut, "https://vault.test/", bytes.NewReader(payload))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("attempts = %d", len(bodies))
	}
	for i, b := range bodies {
		if b != string(payload) {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestRoundTrip_NoRewindNoRetry(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusServiceUnavailable), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry))

	// A body without GetBody cannot be replayed; one attempt only.
	req, _ := http.NewRequest(http.MethodPut, "https://vault.test/", nil)
	req.Body = io.NopCloser(strings.NewReader("payload"))
	req.GetBody = nil

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if stub.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls.Load())
	}
}

func TestRoundTrip_ContextCancelled(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusServiceUnavailable), nil
	}}
	cfg := fastRetry
	cfg.InitialDelay = time.Hour
	rt := New(WithBase(stub), WithRetryConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://vault.test/", nil)
	go cancel()

	if _, err := rt.RoundTrip(req); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRoundTrip_CustomPolicy(t *testing.T) {
	stub := &stubTransport{outcome: func(attempt int32, _ *http.Request) (*http.Response, error) {
		if attempt == 1 {
			return statusResponse(http.StatusNotFound), nil
		}
		return okResponse(), nil
	}}
	rt := New(WithBase(stub), WithRetryConfig(fastRetry),
		WithRetryPolicy(func(resp *http.Response, err error) bool {
			return err != nil || resp.StatusCode == http.StatusNotFound
		}))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
