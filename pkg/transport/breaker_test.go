package transport

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if cb.State() != CircuitClosed {
			t.Fatalf("state = %v before threshold", cb.State())
		}
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// Open circuit rejects without calling through.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("open circuit executed the call")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	boom := errors.New("boom")

	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return boom })

	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, non-consecutive failures must not trip", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond})
	boom := errors.New("boom")

	cb.Execute(func() error { return boom })
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v", cb.State())
	}

	time.Sleep(5 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", cb.State())
	}

	// A successful probe closes the circuit again.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond})
	boom := errors.New("boom")

	cb.Execute(func() error { return boom })
	time.Sleep(5 * time.Millisecond)
	cb.Execute(func() error { return boom })

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want reopened", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb.Execute(func() error { return errors.New("boom") })
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v after Reset", cb.State())
	}
}

func TestTransport_BreakerShortCircuits(t *testing.T) {
	stub := &stubTransport{outcome: func(int32, *http.Request) (*http.Response, error) {
		return nil, errors.New("refused")
	}}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	rt := New(WithBase(stub), WithRetryConfig(fastRetry), WithCircuitBreaker(cb))

	req, _ := http.NewRequest(http.MethodGet, "https://vault.test/", nil)

	// First request: two real attempts trip the breaker, the third is
	// rejected without sending.
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if stub.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls.Load())
	}

	// Subsequent requests fast-fail without touching the endpoint.
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v", err)
	}
	if stub.calls.Load() != 2 {
		t.Fatalf("calls = %d after open circuit", stub.calls.Load())
	}
}

func TestCircuitStateString(t *testing.T) {
	states := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
