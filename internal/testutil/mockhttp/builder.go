// Package mockhttp provides a builder for mock challenge-issuing HTTP
// servers in tests. It removes the boilerplate of wiring httptest servers
// that answer 401 handshakes, validate protected requests, and capture
// what the client actually sent.
//
//	server, client := mockhttp.New().
//		RequireChallenge(`Bearer authorization="https://login.test", resource="https://vault.test"`).
//		JSON("/secrets/db-password", map[string]string{"value": "hunter2"}).
//		Build()
//	defer server.Close()
package mockhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Handler handles a request and reports whether it did; unhandled requests
// fall through to the next handler.
type Handler func(w http.ResponseWriter, r *http.Request) bool

// ServerBuilder assembles a mock server from ordered handlers.
type ServerBuilder struct {
	handlers    []Handler
	useTLS      bool
	defaultCode int
	capture     *Capture
}

// New creates a ServerBuilder. Unmatched requests get 404 unless
// DefaultStatus overrides it.
func New() *ServerBuilder {
	return &ServerBuilder{defaultCode: http.StatusNotFound}
}

// TLS makes Build return an HTTPS server.
func (b *ServerBuilder) TLS() *ServerBuilder {
	b.useTLS = true
	return b
}

// DefaultStatus sets the status code returned when no handler matches.
func (b *ServerBuilder) DefaultStatus(code int) *ServerBuilder {
	b.defaultCode = code
	return b
}

// Handler appends a custom handler.
func (b *ServerBuilder) Handler(h Handler) *ServerBuilder {
	b.handlers = append(b.handlers, h)
	return b
}

// RequireChallenge answers 401 with the given WWW-Authenticate value for
// any request that carries no Authorization header; authorized requests
// fall through. This is the shape of a data-plane endpoint doing the
// challenge handshake.
func (b *ServerBuilder) RequireChallenge(wwwAuthenticate string) *ServerBuilder {
	return b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "" {
			return false
		}
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
		w.WriteHeader(http.StatusUnauthorized)
		return true
	})
}

// AlwaysChallenge answers every request with a 401 carrying the given
// WWW-Authenticate value, for retry-bound tests.
func (b *ServerBuilder) AlwaysChallenge(wwwAuthenticate string) *ServerBuilder {
	return b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
		w.WriteHeader(http.StatusUnauthorized)
		return true
	})
}

// JSON answers requests for path with a 200 JSON response.
func (b *ServerBuilder) JSON(path string, response any) *ServerBuilder {
	return b.JSONWithStatus(path, http.StatusOK, response)
}

// JSONWithStatus answers requests for path with a JSON response and a
// specific status code.
func (b *ServerBuilder) JSONWithStatus(path string, code int, response any) *ServerBuilder {
	return b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
		if !matchPath(r.URL.Path, path) {
			return false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
		return true
	})
}

// Status answers requests for path with an empty response.
func (b *ServerBuilder) Status(path string, code int) *ServerBuilder {
	return b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
		if !matchPath(r.URL.Path, path) {
			return false
		}
		w.WriteHeader(code)
		return true
	})
}

// RouteFunc routes requests for path to a custom handler.
func (b *ServerBuilder) RouteFunc(path string, handler http.HandlerFunc) *ServerBuilder {
	return b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
		if !matchPath(r.URL.Path, path) {
			return false
		}
		handler(w, r)
		return true
	})
}

// Capture enables request capture; every request is recorded before later
// handlers run.
func (b *ServerBuilder) Capture() *Capture {
	if b.capture == nil {
		b.capture = &Capture{}
		b.Handler(func(w http.ResponseWriter, r *http.Request) bool {
			b.capture.record(r)
			return false
		})
	}
	return b.capture
}

// Build creates the httptest server and the client to use with it (the
// returned client carries the TLS config for TLS servers).
func (b *ServerBuilder) Build() (*httptest.Server, *http.Client) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range b.handlers {
			if h(w, r) {
				return
			}
		}
		w.WriteHeader(b.defaultCode)
	})

	var server *httptest.Server
	if b.useTLS {
		server = httptest.NewTLSServer(handler)
	} else {
		server = httptest.NewServer(handler)
	}
	return server, server.Client()
}

// matchPath matches exact paths, or prefixes when the pattern ends in "*".
func matchPath(requestPath, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(requestPath, strings.TrimSuffix(pattern, "*"))
	}
	return requestPath == pattern
}

// Capture stores requests for test assertions.
type Capture struct {
	mu       sync.Mutex
	requests []CapturedRequest
}

// CapturedRequest holds the data recorded from one request.
type CapturedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

func (c *Capture) record(r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, CapturedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
}

// Count returns the number of captured requests.
func (c *Capture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Last returns the most recent captured request, or nil if none.
func (c *Capture) Last() *CapturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return &c.requests[len(c.requests)-1]
}

// All returns a copy of every captured request.
func (c *Capture) All() []CapturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedRequest, len(c.requests))
	copy(out, c.requests)
	return out
}
