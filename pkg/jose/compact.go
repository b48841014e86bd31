package jose

import (
	"fmt"
	"strings"
)

// JwsObject is a parsed three-segment compact JWS. ProtectedHeader holds
// the raw base64url header segment so signing inputs and verifications use
// the exact transmitted bytes.
type JwsObject struct {
	ProtectedHeader string
	Payload         []byte
	Signature       []byte
}

// Compact assembles the dot-joined compact serialization
// header.payload.signature.
func (o *JwsObject) Compact() string {
	return o.ProtectedHeader + "." + EncodeSegment(o.Payload) + "." + EncodeSegment(o.Signature)
}

// Header decodes the protected header segment.
func (o *JwsObject) Header() (*JwsHeader, error) {
	return ParseJwsHeader(o.ProtectedHeader)
}

// SigningInput returns the byte string a signature covers in standard
// compact serialization: header-segment "." payload-segment.
func (o *JwsObject) SigningInput() []byte {
	return []byte(o.ProtectedHeader + "." + EncodeSegment(o.Payload))
}

// ParseJws splits and decodes a compact JWS string.
func ParseJws(s string) (*JwsObject, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: JWS must have 3 segments, got %d", ErrMalformedEnvelope, len(parts))
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: JWS header segment is empty", ErrMalformedEnvelope)
	}
	payload, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, err
	}
	signature, err := DecodeSegment(parts[2])
	if err != nil {
		return nil, err
	}
	return &JwsObject{ProtectedHeader: parts[0], Payload: payload, Signature: signature}, nil
}

// JweObject is a parsed five-segment compact JWE.
type JweObject struct {
	ProtectedHeader string
	EncryptedKey    []byte
	IV              []byte
	Ciphertext      []byte
	Tag             []byte
}

// Compact assembles the dot-joined compact serialization
// header.encrypted_key.iv.ciphertext.tag.
func (o *JweObject) Compact() string {
	return strings.Join([]string{
		o.ProtectedHeader,
		EncodeSegment(o.EncryptedKey),
		EncodeSegment(o.IV),
		EncodeSegment(o.Ciphertext),
		EncodeSegment(o.Tag),
	}, ".")
}

// Header decodes the protected header segment.
func (o *JweObject) Header() (*JweHeader, error) {
	return ParseJweHeader(o.ProtectedHeader)
}

// AssociatedData returns the bytes authenticated alongside the ciphertext:
// the ASCII of the raw header segment, per RFC 7516 section 5.1.
func (o *JweObject) AssociatedData() []byte {
	return []byte(o.ProtectedHeader)
}

// ParseJwe splits and decodes a compact JWE string.
func ParseJwe(s string) (*JweObject, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: JWE must have 5 segments, got %d", ErrMalformedEnvelope, len(parts))
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: JWE header segment is empty", ErrMalformedEnvelope)
	}
	obj := &JweObject{ProtectedHeader: parts[0]}
	for _, f := range []struct {
		dst *[]byte
		seg string
	}{
		{&obj.EncryptedKey, parts[1]},
		{&obj.IV, parts[2]},
		{&obj.Ciphertext, parts[3]},
		{&obj.Tag, parts[4]},
	} {
		data, err := DecodeSegment(f.seg)
		if err != nil {
			return nil, err
		}
		*f.dst = data
	}
	return obj, nil
}
