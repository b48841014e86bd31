// Package challenge parses WWW-Authenticate challenges issued by secrets
// and keys data-plane endpoints and caches them per endpoint so later
// requests skip the discovery round trip.
package challenge

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/keyplane/keyplane/pkg/jose"
)

// Scheme is an authentication scheme advertised by a challenge.
type Scheme string

const (
	SchemeBearer Scheme = "Bearer"
	SchemePoP    Scheme = "PoP"
)

// Parameter names carried by a data-plane challenge.
const (
	paramAuthorization = "authorization"
	paramResource      = "resource"
	paramScope         = "scope"
	paramPoPKeyEncrypt = "pop_key_encrypt"
	paramPoPKeySign    = "pop_key_sign"
)

// Challenge is a parsed WWW-Authenticate header. It is immutable once
// built; a new challenge for the same endpoint replaces it wholesale.
type Challenge struct {
	Scheme              Scheme
	AuthorizationServer string
	Resource            string
	Scope               string

	// Server public keys, present only on PoP challenges.
	ServerEncryptionKey *jose.JSONWebKey
	ServerSignatureKey  *jose.JSONWebKey
}

// SupportsPoP reports whether the challenge negotiated proof-of-possession
// and carries both server keys required to build message security.
func (c *Challenge) SupportsPoP() bool {
	return c.Scheme == SchemePoP && c.ServerEncryptionKey != nil && c.ServerSignatureKey != nil
}

// Endpoint derives the cache key for a request URL: scheme://host.
func Endpoint(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// Parse decodes a WWW-Authenticate header value into a Challenge. The
// scheme token is matched case-insensitively; unknown schemes are an error
// so the caller can fall back to returning the raw response.
func Parse(header string) (*Challenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("challenge: empty WWW-Authenticate header")
	}

	scheme, rest, _ := strings.Cut(header, " ")
	var parsed Scheme
	switch {
	case strings.EqualFold(scheme, string(SchemeBearer)):
		parsed = SchemeBearer
	case strings.EqualFold(scheme, string(SchemePoP)):
		parsed = SchemePoP
	default:
		return nil, fmt.Errorf("challenge: unsupported scheme %q", scheme)
	}

	ch := &Challenge{Scheme: parsed}
	for name, value := range splitParams(rest) {
		switch name {
		case paramAuthorization:
			ch.AuthorizationServer = value
		case paramResource:
			ch.Resource = value
		case paramScope:
			ch.Scope = value
		case paramPoPKeyEncrypt:
			jwk, err := parseJWKParam(name, value)
			if err != nil {
				return nil, err
			}
			ch.ServerEncryptionKey = jwk
		case paramPoPKeySign:
			jwk, err := parseJWKParam(name, value)
			if err != nil {
				return nil, err
			}
			ch.ServerSignatureKey = jwk
		}
	}

	if ch.AuthorizationServer == "" {
		return nil, fmt.Errorf("challenge: missing authorization parameter")
	}
	return ch, nil
}

// parseJWKParam decodes a JWK challenge parameter. Servers send the JWK
// either as literal JSON or base64url-encoded JSON; accept both.
func parseJWKParam(name, value string) (*jose.JSONWebKey, error) {
	raw := []byte(value)
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		decoded, err := jose.DecodeSegment(value)
		if err != nil {
			return nil, fmt.Errorf("challenge: parameter %q: %w", name, err)
		}
		raw = decoded
	}
	jwk, err := jose.ParseJWK(raw)
	if err != nil {
		return nil, fmt.Errorf("challenge: parameter %q: %w", name, err)
	}
	return jwk, nil
}

// splitParams decomposes `k="v", k2="v2"` with quote awareness: commas and
// equals signs inside quoted values (JWK JSON) never split, and \" escapes
// a quote within a value.
func splitParams(s string) map[string]string {
	params := make(map[string]string)

	var name, value strings.Builder
	inValue, quoted, escaped := false, false, false

	flush := func() {
		n := strings.ToLower(strings.TrimSpace(name.String()))
		if n != "" {
			params[n] = value.String()
		}
		name.Reset()
		value.Reset()
		inValue, quoted = false, false
	}

	for _, r := range s {
		switch {
		case escaped:
			value.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case quoted && r == '"':
			quoted = false
		case inValue && r == '"' && value.Len() == 0:
			quoted = true
		case !inValue && r == '=':
			inValue = true
		case !quoted && r == ',':
			flush()
		case inValue:
			if !quoted && (r == ' ' || r == '\t') {
				continue
			}
			value.WriteRune(r)
		default:
			name.WriteRune(r)
		}
	}
	flush()
	return params
}
