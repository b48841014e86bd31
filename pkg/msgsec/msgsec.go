// Package msgsec builds and tears down message-level security for one
// logical data-plane call. A context created from a Bearer challenge only
// injects the Authorization header; a proof-of-possession context
// additionally wraps the request body in a JWE addressed to the server's
// encryption key, signs it with an ephemeral client key, and unwraps and
// verifies the response.
//
// A MessageSecurity is single-use: the handler creates one per request and
// discards it, together with its ephemeral keys, once the response has
// been unprotected.
package msgsec

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keyplane/keyplane/pkg/challenge"
	"github.com/keyplane/keyplane/pkg/jose"
)

// Header names and media types used by protected messages.
const (
	AuthorizationHeader = "Authorization"
	SignatureHeader     = "Signature"
	ContentTypeJose     = "application/jose"
)

// ErrIncompleteChallenge indicates a PoP challenge without both server
// keys; message security cannot be built and no request is sent.
var ErrIncompleteChallenge = errors.New("msgsec: PoP challenge is missing server encryption or signature key")

// SigningInput decides the exact byte string a request/response signature
// covers, given the raw base64url header and payload segments. The default
// signs the standard JWS signing input header "." payload.
type SigningInput func(headerSegment, payloadSegment string) []byte

func defaultSigningInput(headerSegment, payloadSegment string) []byte {
	return []byte(headerSegment + "." + payloadSegment)
}

// MessageSecurity protects one request and unprotects its response.
type MessageSecurity struct {
	scheme challenge.Scheme
	token  string

	clientSignatureKey  *jose.RsaKey
	clientEncryptionKey *jose.RsaKey
	serverEncryptionKey *jose.RsaKey
	serverSignatureKey  *jose.RsaKey

	signingInput SigningInput
	now          func() time.Time
}

// Option configures a MessageSecurity.
type Option func(*MessageSecurity)

// WithSigningInput overrides the signed byte range contract.
func WithSigningInput(f SigningInput) Option {
	return func(ms *MessageSecurity) {
		if f != nil {
			ms.signingInput = f
		}
	}
}

// WithClientSignatureKey injects the ephemeral client signature key
// instead of generating one. The key must be private.
func WithClientSignatureKey(key *jose.RsaKey) Option {
	return func(ms *MessageSecurity) { ms.clientSignatureKey = key }
}

// WithClientEncryptionKey injects the ephemeral client encryption key pair
// instead of generating one. The key must be private.
func WithClientEncryptionKey(key *jose.RsaKey) Option {
	return func(ms *MessageSecurity) { ms.clientEncryptionKey = key }
}

// WithClock overrides the timestamp source for signed headers.
func WithClock(now func() time.Time) Option {
	return func(ms *MessageSecurity) {
		if now != nil {
			ms.now = now
		}
	}
}

// New builds message security for one call. For Bearer only the token is
// retained. For PoP the challenge must carry both server keys; providerKey,
// when private, becomes the client signature key (it is the key the token
// was bound to), and a fresh encryption key pair is generated.
func New(scheme challenge.Scheme, token string, providerKey *jose.RsaKey, ch *challenge.Challenge, opts ...Option) (*MessageSecurity, error) {
	ms := &MessageSecurity{
		scheme:       scheme,
		token:        token,
		signingInput: defaultSigningInput,
		now:          time.Now,
	}
	if scheme != challenge.SchemePoP {
		for _, opt := range opts {
			opt(ms)
		}
		return ms, nil
	}

	if ch == nil || ch.ServerEncryptionKey == nil || ch.ServerSignatureKey == nil {
		return nil, ErrIncompleteChallenge
	}
	serverEnc, err := jose.RsaKeyFromJWK(ch.ServerEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("server encryption key: %w", err)
	}
	serverSig, err := jose.RsaKeyFromJWK(ch.ServerSignatureKey)
	if err != nil {
		return nil, fmt.Errorf("server signature key: %w", err)
	}
	ms.serverEncryptionKey = serverEnc
	ms.serverSignatureKey = serverSig

	if providerKey != nil && providerKey.IsPrivate() {
		ms.clientSignatureKey = providerKey
	}
	for _, opt := range opts {
		opt(ms)
	}

	if ms.clientSignatureKey == nil {
		ms.clientSignatureKey, err = jose.GenerateRsaKey(2048)
		if err != nil {
			return nil, fmt.Errorf("generate client signature key: %w", err)
		}
	}
	if ms.clientEncryptionKey == nil {
		ms.clientEncryptionKey, err = jose.GenerateRsaKey(2048)
		if err != nil {
			return nil, fmt.Errorf("generate client encryption key: %w", err)
		}
	}
	return ms, nil
}

// Scheme returns the negotiated scheme for this context.
func (ms *MessageSecurity) Scheme() challenge.Scheme { return ms.scheme }

// ProtectRequest applies message security to an outgoing request. Bearer
// only sets the Authorization header. PoP replaces the body with a JWE
// compact envelope, signs it, and sets the Authorization and Signature
// headers.
func (ms *MessageSecurity) ProtectRequest(req *http.Request) error {
	if ms.scheme != challenge.SchemePoP {
		req.Header.Set(AuthorizationHeader, string(challenge.SchemeBearer)+" "+ms.token)
		return nil
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
	}

	// Requests without a body skip content encryption; the signature still
	// binds the token and timestamp to the call.
	var payload string
	if len(body) > 0 {
		envelope, err := ms.encryptBody(body)
		if err != nil {
			return fmt.Errorf("protect request: %w", err)
		}
		payload = envelope
		req.Body = io.NopCloser(strings.NewReader(envelope))
		req.ContentLength = int64(len(envelope))
		req.Header.Set("Content-Type", ContentTypeJose)
	}

	jws, err := ms.signPayload([]byte(payload))
	if err != nil {
		return fmt.Errorf("protect request: %w", err)
	}
	req.Header.Set(AuthorizationHeader, string(challenge.SchemePoP)+" "+ms.token)
	req.Header.Set(SignatureHeader, jws)
	return nil
}

// UnprotectResponse reverses message security on a response in place. Any
// Signature header is verified against the server's signature key before
// the body is accepted; a JWE body is decrypted with the client's
// ephemeral encryption key. Integrity failures surface as
// jose.ErrAuthenticationFailed and are never retried here; the caller
// must redo the challenge handshake.
func (ms *MessageSecurity) UnprotectResponse(resp *http.Response) error {
	if ms.scheme != challenge.SchemePoP || resp == nil {
		return nil
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	if sig := resp.Header.Get(SignatureHeader); sig != "" {
		if err := ms.verifyResponseSignature(sig, body); err != nil {
			return fmt.Errorf("unprotect response: %w", err)
		}
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), ContentTypeJose) {
		return nil
	}

	plaintext, err := ms.decryptBody(body)
	if err != nil {
		return fmt.Errorf("unprotect response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(plaintext))
	resp.ContentLength = int64(len(plaintext))
	resp.Header.Set("Content-Type", "application/json")
	return nil
}

// encryptBody wraps body into a JWE compact envelope addressed to the
// server's encryption key: fresh 256-bit CEK and 128-bit IV, AEAD over the
// body with the header segment as associated data, CEK wrapped with
// RSA-OAEP.
func (ms *MessageSecurity) encryptBody(body []byte) (string, error) {
	cek := make([]byte, jose.AEADKeySize)
	if _, err := rand.Read(cek); err != nil {
		return "", fmt.Errorf("generate content-encryption key: %w", err)
	}
	iv := make([]byte, jose.AEADIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	header := &jose.JweHeader{
		Alg: jose.AlgRSAOAEP,
		Kid: ms.serverEncryptionKey.Kid(),
		Enc: jose.EncA128CBCHS256,
	}
	headerSegment, err := header.CompactHeader()
	if err != nil {
		return "", err
	}

	ciphertext, tag, err := jose.EncryptA128CBCHS256(cek, iv, body, []byte(headerSegment))
	if err != nil {
		return "", err
	}
	encryptedKey, err := ms.serverEncryptionKey.Encrypt(cek)
	if err != nil {
		return "", err
	}

	envelope := &jose.JweObject{
		ProtectedHeader: headerSegment,
		EncryptedKey:    encryptedKey,
		IV:              iv,
		Ciphertext:      ciphertext,
		Tag:             tag,
	}
	return envelope.Compact(), nil
}

// decryptBody reverses encryptBody using the client's encryption key.
func (ms *MessageSecurity) decryptBody(body []byte) ([]byte, error) {
	envelope, err := jose.ParseJwe(string(body))
	if err != nil {
		return nil, err
	}
	header, err := envelope.Header()
	if err != nil {
		return nil, err
	}
	if header.Alg != jose.AlgRSAOAEP || header.Enc != jose.EncA128CBCHS256 {
		return nil, fmt.Errorf("%w: unexpected alg %q / enc %q", jose.ErrMalformedEnvelope, header.Alg, header.Enc)
	}

	cek, err := ms.clientEncryptionKey.Decrypt(envelope.EncryptedKey)
	if err != nil {
		return nil, err
	}
	return jose.DecryptA128CBCHS256(cek, envelope.IV, envelope.Ciphertext, envelope.AssociatedData(), envelope.Tag)
}

// signPayload builds the compact JWS carrying the access token and a
// timestamp, signed with the client signature key.
func (ms *MessageSecurity) signPayload(payload []byte) (string, error) {
	header := &jose.JwsHeader{
		Alg: jose.AlgRS256,
		Kid: ms.clientSignatureKey.Kid(),
		At:  ms.token,
		Ts:  ms.now().Unix(),
		Typ: jose.TypPoP,
	}
	headerSegment, err := header.CompactHeader()
	if err != nil {
		return "", err
	}
	payloadSegment := jose.EncodeSegment(payload)

	signature, err := ms.clientSignatureKey.Sign(ms.signingInput(headerSegment, payloadSegment))
	if err != nil {
		return "", err
	}
	obj := &jose.JwsObject{ProtectedHeader: headerSegment, Payload: payload, Signature: signature}
	return obj.Compact(), nil
}

// verifyResponseSignature checks a response Signature header: the JWS must
// verify against the server's signature key and its payload must be the
// response body as transmitted.
func (ms *MessageSecurity) verifyResponseSignature(sig string, body []byte) error {
	obj, err := jose.ParseJws(sig)
	if err != nil {
		return err
	}
	header, err := obj.Header()
	if err != nil {
		return err
	}
	if header.Alg != jose.AlgRS256 {
		return fmt.Errorf("%w: unexpected signature alg %q", jose.ErrMalformedEnvelope, header.Alg)
	}
	input := ms.signingInput(obj.ProtectedHeader, jose.EncodeSegment(obj.Payload))
	if err := ms.serverSignatureKey.Verify(input, obj.Signature); err != nil {
		return err
	}
	if !bytes.Equal(obj.Payload, body) {
		return fmt.Errorf("%w: signed payload does not match response body", jose.ErrAuthenticationFailed)
	}
	return nil
}
