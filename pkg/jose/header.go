package jose

import (
	"encoding/json"
	"fmt"
)

// Content-encryption algorithm and envelope type identifiers.
const (
	EncA128CBCHS256 = "A128CBC-HS256"
	TypPoP          = "PoP"
)

// JwsHeader is the protected header of a data-plane JWS. Beyond the
// standard alg/kid/typ it carries the access token (at) and a Unix
// timestamp (ts) binding the signature to one authenticated call.
type JwsHeader struct {
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	At  string `json:"at,omitempty"`
	Ts  int64  `json:"ts,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// CompactHeader serializes the header to JSON and base64url-encodes it.
func (h *JwsHeader) CompactHeader() (string, error) {
	return compactHeader(h)
}

// ParseJwsHeader reverses CompactHeader.
func ParseJwsHeader(segment string) (*JwsHeader, error) {
	var h JwsHeader
	if err := parseCompactHeader(segment, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// JweHeader is the protected header of a data-plane JWE.
type JweHeader struct {
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	Enc string `json:"enc,omitempty"`
}

// CompactHeader serializes the header to JSON and base64url-encodes it.
func (h *JweHeader) CompactHeader() (string, error) {
	return compactHeader(h)
}

// ParseJweHeader reverses CompactHeader.
func ParseJweHeader(segment string) (*JweHeader, error) {
	var h JweHeader
	if err := parseCompactHeader(segment, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func compactHeader(h any) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	return EncodeSegment(data), nil
}

func parseCompactHeader(segment string, h any) error {
	data, err := DecodeSegment(segment)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, h); err != nil {
		return fmt.Errorf("%w: unparsable header: %v", ErrMalformedEnvelope, err)
	}
	return nil
}
