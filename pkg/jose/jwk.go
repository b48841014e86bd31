package jose

import (
	"encoding/json"
	"fmt"
)

// Key type and operation values used by data-plane JWKs.
const (
	KeyTypeRSA = "RSA"

	KeyOpEncrypt   = "encrypt"
	KeyOpDecrypt   = "decrypt"
	KeyOpSign      = "sign"
	KeyOpVerify    = "verify"
	KeyOpWrapKey   = "wrapKey"
	KeyOpUnwrapKey = "unwrapKey"
)

// JSONWebKey is the RFC 7517 JSON representation of an RSA key. All integer
// fields are base64url-encoded minimal unsigned big-endian bytes. The CRT
// fields (p, q, d, dp, dq, qi) are present only for private keys.
type JSONWebKey struct {
	Kid    string   `json:"kid,omitempty"`
	Kty    string   `json:"kty"`
	KeyOps []string `json:"key_ops,omitempty"`
	N      string   `json:"n,omitempty"`
	E      string   `json:"e,omitempty"`
	D      string   `json:"d,omitempty"`
	P      string   `json:"p,omitempty"`
	Q      string   `json:"q,omitempty"`
	DP     string   `json:"dp,omitempty"`
	DQ     string   `json:"dq,omitempty"`
	QI     string   `json:"qi,omitempty"`
}

// HasPrivateFields reports whether the JWK carries private RSA material.
func (j *JSONWebKey) HasPrivateFields() bool {
	return j.D != "" || j.P != "" || j.Q != ""
}

// ParseJWK decodes a JSONWebKey from its JSON serialization.
func ParseJWK(data []byte) (*JSONWebKey, error) {
	var jwk JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: unparsable JWK: %v", ErrMalformedEnvelope, err)
	}
	return &jwk, nil
}

// Marshal returns the JSON serialization of the JWK.
func (j *JSONWebKey) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal JWK: %w", err)
	}
	return data, nil
}
