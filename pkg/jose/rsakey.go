package jose

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Algorithm names this key implements, per RFC 7518.
const (
	AlgRSAOAEP = "RSA-OAEP"
	AlgRS256   = "RS256"
)

// defaultKeyOps is the operation set stamped on generated keys.
var defaultKeyOps = []string{KeyOpEncrypt, KeyOpDecrypt, KeyOpSign, KeyOpVerify, KeyOpWrapKey, KeyOpUnwrapKey}

// RsaKey is an RSA key usable for key wrapping (RSA-OAEP) and signing
// (RS256). A key holds private material only when generated locally or
// imported from a JWK carrying private fields; otherwise the private
// operations fail with ErrOperationNotSupported.
type RsaKey struct {
	kid    string
	keyOps []string
	pub    *rsa.PublicKey
	priv   *rsa.PrivateKey
}

// GenerateRsaKey creates a fresh RSA private key of the given bit size with
// a new random key id.
func GenerateRsaKey(bits int) (*RsaKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("%w: RSA key size must be at least 2048 bits, got %d", ErrInvalidArgument, bits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return &RsaKey{
		kid:    uuid.NewString(),
		keyOps: append([]string(nil), defaultKeyOps...),
		pub:    &priv.PublicKey,
		priv:   priv,
	}, nil
}

// RsaKeyFromJWK reconstructs a key from its JWK representation. A JWK with
// only public fields yields a public-only key.
func RsaKeyFromJWK(jwk *JSONWebKey) (*RsaKey, error) {
	if jwk == nil {
		return nil, fmt.Errorf("%w: JWK is required", ErrInvalidArgument)
	}
	if jwk.Kty != KeyTypeRSA {
		return nil, fmt.Errorf("%w: kty must be %q, got %q", ErrMalformedEnvelope, KeyTypeRSA, jwk.Kty)
	}
	if jwk.N == "" || jwk.E == "" {
		return nil, fmt.Errorf("%w: JWK is missing required fields n and e", ErrMalformedEnvelope)
	}

	n, err := decodeJWKInt(jwk.N, "n")
	if err != nil {
		return nil, err
	}
	e, err := decodeJWKInt(jwk.E, "e")
	if err != nil {
		return nil, err
	}

	key := &RsaKey{
		kid:    jwk.Kid,
		keyOps: append([]string(nil), jwk.KeyOps...),
		pub:    &rsa.PublicKey{N: n, E: int(e.Int64())},
	}

	if !jwk.HasPrivateFields() {
		return key, nil
	}
	if jwk.D == "" || jwk.P == "" || jwk.Q == "" {
		return nil, fmt.Errorf("%w: private JWK requires d, p and q", ErrMalformedEnvelope)
	}

	d, err := decodeJWKInt(jwk.D, "d")
	if err != nil {
		return nil, err
	}
	p, err := decodeJWKInt(jwk.P, "p")
	if err != nil {
		return nil, err
	}
	q, err := decodeJWKInt(jwk.Q, "q")
	if err != nil {
		return nil, err
	}

	priv := &rsa.PrivateKey{
		PublicKey: *key.pub,
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	priv.Precompute()
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: inconsistent private JWK: %v", ErrMalformedEnvelope, err)
	}
	key.priv = priv
	return key, nil
}

// Kid returns the key identifier.
func (k *RsaKey) Kid() string { return k.kid }

// SetKid overrides the key identifier, e.g. when a server assigns one.
func (k *RsaKey) SetKid(kid string) { k.kid = kid }

// IsPrivate reports whether private-key operations are available.
func (k *RsaKey) IsPrivate() bool { return k.priv != nil }

// Bits returns the modulus size in bits.
func (k *RsaKey) Bits() int { return k.pub.N.BitLen() }

// Public returns a public-only copy of the key, sharing kid and key_ops.
func (k *RsaKey) Public() *RsaKey {
	return &RsaKey{kid: k.kid, keyOps: append([]string(nil), k.keyOps...), pub: k.pub}
}

// ToJWK exports the key as a JWK. Private fields are included only when
// requested and available.
func (k *RsaKey) ToJWK(includePrivate bool) (*JSONWebKey, error) {
	nBytes, err := IntToBytes(k.pub.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := IntToBytes(big.NewInt(int64(k.pub.E)))
	if err != nil {
		return nil, err
	}
	jwk := &JSONWebKey{
		Kid:    k.kid,
		Kty:    KeyTypeRSA,
		KeyOps: append([]string(nil), k.keyOps...),
		N:      EncodeSegment(nBytes),
		E:      EncodeSegment(eBytes),
	}
	if !includePrivate || k.priv == nil {
		return jwk, nil
	}

	for _, f := range []struct {
		dst *string
		val *big.Int
	}{
		{&jwk.D, k.priv.D},
		{&jwk.P, k.priv.Primes[0]},
		{&jwk.Q, k.priv.Primes[1]},
		{&jwk.DP, k.priv.Precomputed.Dp},
		{&jwk.DQ, k.priv.Precomputed.Dq},
		{&jwk.QI, k.priv.Precomputed.Qinv},
	} {
		b, err := IntToBytes(f.val)
		if err != nil {
			return nil, err
		}
		*f.dst = EncodeSegment(b)
	}
	return jwk, nil
}

// Encrypt wraps a short plaintext (typically a content-encryption key) to
// the public key using RSA-OAEP.
func (k *RsaKey) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext is required", ErrInvalidArgument)
	}
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, k.pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("RSA-OAEP encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt unwraps an RSA-OAEP ciphertext with the private key.
func (k *RsaKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext is required", ErrInvalidArgument)
	}
	if k.priv == nil {
		return nil, fmt.Errorf("%w: decrypt requires a private key", ErrOperationNotSupported)
	}
	pt, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, k.priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: RSA-OAEP decrypt: %v", ErrAuthenticationFailed, err)
	}
	return pt, nil
}

// Sign produces an RS256 signature over data.
func (k *RsaKey) Sign(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data is required", ErrInvalidArgument)
	}
	if k.priv == nil {
		return nil, fmt.Errorf("%w: sign requires a private key", ErrOperationNotSupported)
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("RS256 sign: %w", err)
	}
	return sig, nil
}

// Verify checks an RS256 signature over data against the public key.
func (k *RsaKey) Verify(data, signature []byte) error {
	if len(data) == 0 || len(signature) == 0 {
		return fmt.Errorf("%w: data and signature are required", ErrInvalidArgument)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(k.pub, crypto.SHA256, digest[:], signature); err != nil {
		return fmt.Errorf("%w: signature mismatch", ErrAuthenticationFailed)
	}
	return nil
}

func decodeJWKInt(segment, field string) (*big.Int, error) {
	raw, err := DecodeSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: JWK field %q: %v", ErrMalformedEnvelope, field, err)
	}
	v, err := BytesToInt(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: JWK field %q is empty", ErrMalformedEnvelope, field)
	}
	return v, nil
}
