// Package authn implements challenge-based authentication for secrets and
// keys data-plane endpoints: scheme discovery via the 401 handshake,
// per-endpoint challenge caching, token acquisition through a pluggable
// provider, and message-level protection when the negotiated scheme is
// proof-of-possession.
package authn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/keyplane/keyplane/pkg/challenge"
	"github.com/keyplane/keyplane/pkg/msgsec"
)

// MessageProtectionPolicy decides whether a given operation supports
// message protection under a PoP challenge. The resource-specific decision
// stays with the caller; the default enables protection whenever the
// challenge carries both server keys.
type MessageProtectionPolicy func(ch *challenge.Challenge, req *http.Request) bool

// Handler is an http.RoundTripper that authenticates requests against
// challenge-issuing endpoints. On a cache hit it protects and sends the
// request once; on a cache miss it probes with a stripped body, parses the
// 401 challenge, and resends the restored request exactly once. A second
// 401 is returned to the caller unchanged.
type Handler struct {
	base       http.RoundTripper
	provider   TokenProvider
	cache      challenge.Cache
	logger     *slog.Logger
	protection MessageProtectionPolicy
	msOpts     []msgsec.Option
}

// Option configures a Handler.
type Option func(*Handler)

// WithBaseTransport sets the underlying transport. Defaults to
// http.DefaultTransport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(h *Handler) {
		if rt != nil {
			h.base = rt
		}
	}
}

// WithCache injects the challenge cache. Defaults to a fresh MapCache;
// tests substitute an isolated instance, processes share one across
// clients to amortize discovery.
func WithCache(c challenge.Cache) Option {
	return func(h *Handler) {
		if c != nil {
			h.cache = c
		}
	}
}

// WithLogger sets the structured logger for handshake outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMessageProtection sets the policy deciding when PoP applies to an
// operation.
func WithMessageProtection(p MessageProtectionPolicy) Option {
	return func(h *Handler) {
		if p != nil {
			h.protection = p
		}
	}
}

// WithMessageSecurityOptions forwards options to every message security
// context the handler builds. Used by tests to pin ephemeral keys and
// clocks.
func WithMessageSecurityOptions(opts ...msgsec.Option) Option {
	return func(h *Handler) {
		h.msOpts = append(h.msOpts, opts...)
	}
}

// NewHandler creates an authentication handler around a token provider.
func NewHandler(provider TokenProvider, opts ...Option) *Handler {
	h := &Handler{
		base:     http.DefaultTransport,
		provider: provider,
		cache:    challenge.NewMapCache(),
		logger:   slog.Default(),
		protection: func(ch *challenge.Challenge, _ *http.Request) bool {
			return ch.SupportsPoP()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewHTTPClient returns an *http.Client whose transport authenticates
// through a Handler built with the given options.
func NewHTTPClient(provider TokenProvider, opts ...Option) *http.Client {
	return &http.Client{Transport: NewHandler(provider, opts...)}
}

// attempt scopes per-request handshake state to one logical RoundTrip
// call: the buffered original body and the retried-once flag. Keeping it
// on the stack (never on the handler or any worker identity) means
// concurrent and interleaved requests cannot cross-contaminate retry
// state, and redirects (which arrive as fresh RoundTrip calls from the
// enclosing http.Client) naturally start over.
type attempt struct {
	body      []byte
	attempted bool
}

// RoundTrip implements http.RoundTripper.
func (h *Handler) RoundTrip(req *http.Request) (*http.Response, error) {
	if h.provider == nil {
		return nil, errors.New("authn: token provider is nil")
	}

	at := &attempt{}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("authn: buffer request body: %w", err)
		}
		at.body = body
	}

	endpoint := challenge.Endpoint(req.URL)

	if ch, ok := h.cache.Get(endpoint); ok {
		h.logger.Debug("challenge cache hit", "endpoint", endpoint, "scheme", ch.Scheme)
		return h.sendProtected(cloneWithBody(req, at.body), ch)
	}

	// Discovery: probe without the body so no payload travels
	// unauthenticated, then handshake on the 401.
	probeResp, err := h.base.RoundTrip(cloneStripped(req))
	if err != nil {
		return nil, err
	}
	if probeResp.StatusCode != http.StatusUnauthorized {
		return probeResp, nil
	}

	header := probeResp.Header.Get("WWW-Authenticate")
	ch, err := challenge.Parse(header)
	if err != nil {
		// Unrecognized or malformed challenges are not an error at this
		// layer: hand the raw 401 back to the caller.
		h.logger.Warn("unusable challenge, returning raw response",
			"endpoint", endpoint, "error", err)
		return probeResp, nil
	}

	h.cache.Set(endpoint, ch)
	at.attempted = true
	h.logger.Debug("challenge received", "endpoint", endpoint, "scheme", ch.Scheme)

	drainBody(probeResp)

	retry := cloneWithBody(req, at.body)
	for _, c := range probeResp.Cookies() {
		retry.AddCookie(c)
	}

	resp, err := h.sendProtected(retry, ch)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && at.attempted {
		// Bounded handshake: one retry per logical request, the second
		// 401 goes back as-is.
		h.logger.Warn("authentication retry exhausted", "endpoint", endpoint)
	}
	return resp, nil
}

// sendProtected acquires a token, builds message security, protects the
// request, sends it, and unprotects the response.
func (h *Handler) sendProtected(req *http.Request, ch *challenge.Challenge) (*http.Response, error) {
	scheme := challenge.SchemeBearer
	if ch.SupportsPoP() && h.protection(ch, req) {
		scheme = challenge.SchemePoP
	}

	token, err := h.provider.GetToken(req.Context(), TokenRequest{
		AuthorizationServer: ch.AuthorizationServer,
		Resource:            ch.Resource,
		Scope:               ch.Scope,
		Scheme:              scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("authn: get token: %w", err)
	}

	ms, err := msgsec.New(token.Scheme, token.Token, token.Key, ch, h.msOpts...)
	if err != nil {
		return nil, fmt.Errorf("authn: build message security: %w", err)
	}
	if err := ms.ProtectRequest(req); err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	resp, err := h.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp, nil
	}
	if err := ms.UnprotectResponse(resp); err != nil {
		drainBody(resp)
		return nil, fmt.Errorf("authn: %w", err)
	}
	return resp, nil
}

// cloneStripped clones a request with an empty body and Content-Length 0
// for the unauthenticated probe.
func cloneStripped(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = http.NoBody
	clone.ContentLength = 0
	clone.Header.Del("Content-Length")
	return clone
}

// cloneWithBody clones a request restoring the buffered body.
func cloneWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body == nil {
		clone.Body = http.NoBody
		clone.ContentLength = 0
		return clone
	}
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return clone
}

// drainBody consumes and closes a response body so the underlying
// connection can be reused for the retried send.
func drainBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
