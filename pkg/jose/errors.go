package jose

import "errors"

var (
	// ErrInvalidArgument indicates a malformed or missing cryptographic input
	// (wrong key/IV length, empty plaintext, nil key).
	ErrInvalidArgument = errors.New("jose: invalid argument")

	// ErrAuthenticationFailed indicates an integrity failure: an AEAD tag or
	// a signature did not verify. No plaintext is ever returned alongside it.
	ErrAuthenticationFailed = errors.New("jose: authentication failed")

	// ErrMalformedEnvelope indicates an unparsable JWE/JWS compact string or
	// a JWK missing required fields.
	ErrMalformedEnvelope = errors.New("jose: malformed envelope")

	// ErrOperationNotSupported indicates a private-key operation was invoked
	// on a key imported without private material.
	ErrOperationNotSupported = errors.New("jose: operation not supported by public-only key")
)
