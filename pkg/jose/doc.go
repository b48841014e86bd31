// Package jose implements the JOSE primitives behind keyplane message
// security: the A128CBC-HS256 authenticated-encryption construction, RSA
// keys with JSON Web Key import/export, and JWS/JWE compact serialization.
//
// # Why not an off-the-shelf JOSE library
//
// The data-plane protocol frames messages with a nonstandard JWS header
// (it carries the access token and a timestamp alongside alg/kid/typ) and
// needs byte-exact control over the signed input and the associated data
// fed to the AEAD. The primitives here stay wire-compatible with RFC 7515,
// 7516 and 7518 (the interop tests in this module decrypt and verify
// produced envelopes with go-jose) but are small enough to audit and expose
// the error taxonomy the authentication layer branches on.
//
// # Error taxonomy
//
// Every failure wraps one of four sentinel errors so callers branch on
// kind, never on underlying-library types:
//
//   - ErrInvalidArgument: malformed or missing cryptographic inputs
//   - ErrAuthenticationFailed: tag or signature mismatch
//   - ErrMalformedEnvelope: unparsable JWE/JWS or JWK material
//   - ErrOperationNotSupported: private-key operation on a public-only key
package jose
