package authn

import (
	"context"

	"github.com/keyplane/keyplane/pkg/challenge"
	"github.com/keyplane/keyplane/pkg/jose"
)

// TokenRequest carries the challenge parameters a provider needs to mint
// an access token. Scheme is the scheme the handler wants; providers may
// answer with a different one (a PoP-incapable provider returns Bearer).
type TokenRequest struct {
	AuthorizationServer string
	Resource            string
	Scope               string
	Scheme              challenge.Scheme
}

// AccessToken is what a provider returns: the scheme the token is valid
// for, the token string, and, for PoP, the private key the token is
// bound to. Key is nil for Bearer tokens.
type AccessToken struct {
	Scheme challenge.Scheme
	Token  string
	Key    *jose.RsaKey
}

// TokenProvider obtains access tokens for challenges. The call may block
// on network I/O; it is invoked synchronously within the logical request
// it serves. Any token caching belongs to the provider, not this layer.
type TokenProvider interface {
	GetToken(ctx context.Context, req TokenRequest) (AccessToken, error)
}

// TokenCallback adapts a scheme-aware callback to TokenProvider. This is
// the full contract: authorization server, resource, scope, and requested
// scheme, answered with a token plus optional key material.
type TokenCallback func(ctx context.Context, authorizationServer, resource, scope string, scheme challenge.Scheme) (AccessToken, error)

// GetToken implements TokenProvider.
func (f TokenCallback) GetToken(ctx context.Context, req TokenRequest) (AccessToken, error) {
	return f(ctx, req.AuthorizationServer, req.Resource, req.Scope, req.Scheme)
}

// LegacyTokenCallback adapts the older three-parameter callback that
// returns only a scheme and token, never key material. Callers pick this
// variant at construction; the handler never inspects callback arity at
// run time.
type LegacyTokenCallback func(ctx context.Context, authorizationServer, resource, scope string) (challenge.Scheme, string, error)

// GetToken implements TokenProvider. The returned token carries no key.
func (f LegacyTokenCallback) GetToken(ctx context.Context, req TokenRequest) (AccessToken, error) {
	scheme, token, err := f(ctx, req.AuthorizationServer, req.Resource, req.Scope)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Scheme: scheme, Token: token}, nil
}
