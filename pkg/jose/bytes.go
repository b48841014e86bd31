package jose

import (
	"encoding/base64"
	"fmt"
	"math/big"
)

// EncodeSegment encodes data as unpadded base64url, the alphabet every
// compact-serialization segment uses.
func EncodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeSegment decodes an unpadded base64url segment.
func DecodeSegment(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64url segment: %v", ErrMalformedEnvelope, err)
	}
	return data, nil
}

// BytesToInt interprets b as an unsigned big-endian integer.
// Empty or nil input is an error, not zero.
func BytesToInt(b []byte) (*big.Int, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: cannot decode integer from empty bytes", ErrInvalidArgument)
	}
	return new(big.Int).SetBytes(b), nil
}

// IntToBytes encodes v as minimal unsigned big-endian bytes with no leading
// zero byte. Zero encodes as an empty slice.
func IntToBytes(v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: cannot encode nil integer", ErrInvalidArgument)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: cannot encode negative integer", ErrInvalidArgument)
	}
	return v.Bytes(), nil
}

// IntToFixedBytes encodes v as unsigned big-endian bytes of exactly width
// bytes, zero-padded on the left. A value that does not fit the requested
// width is an error, never silently truncated.
func IntToFixedBytes(v *big.Int, width int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: cannot encode nil integer", ErrInvalidArgument)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: cannot encode negative integer", ErrInvalidArgument)
	}
	if width <= 0 {
		return nil, fmt.Errorf("%w: fixed width must be positive, got %d", ErrInvalidArgument, width)
	}
	if v.BitLen() > width*8 {
		return nil, fmt.Errorf("%w: integer needs %d bits, exceeds fixed width of %d bytes", ErrInvalidArgument, v.BitLen(), width)
	}
	out := make([]byte, width)
	v.FillBytes(out)
	return out, nil
}
