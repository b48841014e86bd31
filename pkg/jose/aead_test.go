package jose

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return b
}

func TestAEAD_RoundTrip(t *testing.T) {
	key := randBytes(t, AEADKeySize)
	iv := randBytes(t, AEADIVSize)
	aad := []byte("eyJhbGciOiJSU0EtT0FFUCJ9")

	// Cover lengths below, at, and across the AES block boundary.
	for _, n := range []int{1, 15, 16, 17, 31, 32, 1000} {
		plaintext := randBytes(t, n)

		ciphertext, tag, err := EncryptA128CBCHS256(key, iv, plaintext, aad)
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", n, err)
		}
		if len(tag) != AEADTagSize {
			t.Fatalf("tag length = %d, want %d", len(tag), AEADTagSize)
		}
		if len(ciphertext)%16 != 0 {
			t.Fatalf("ciphertext length %d not block aligned", len(ciphertext))
		}

		got, err := DecryptA128CBCHS256(key, iv, ciphertext, aad, tag)
		if err != nil {
			t.Fatalf("decrypt %d bytes: %v", n, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip of %d bytes produced different plaintext", n)
		}
	}
}

func TestAEAD_TamperDetection(t *testing.T) {
	key := randBytes(t, AEADKeySize)
	iv := randBytes(t, AEADIVSize)
	aad := []byte("protected-header-segment")
	plaintext := []byte(`{"value":"hunter2"}`)

	ciphertext, tag, err := EncryptA128CBCHS256(key, iv, plaintext, aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	flip := func(b []byte, bit int) []byte {
		out := append([]byte(nil), b...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}

	for bit := 0; bit < len(tag)*8; bit += 7 {
		if _, err := DecryptA128CBCHS256(key, iv, ciphertext, aad, flip(tag, bit)); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("tag bit %d flipped: got %v, want ErrAuthenticationFailed", bit, err)
		}
	}
	for bit := 0; bit < len(ciphertext)*8; bit += 13 {
		if _, err := DecryptA128CBCHS256(key, iv, flip(ciphertext, bit), aad, tag); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("ciphertext bit %d flipped: got %v, want ErrAuthenticationFailed", bit, err)
		}
	}
	for bit := 0; bit < len(aad)*8; bit += 11 {
		if _, err := DecryptA128CBCHS256(key, iv, ciphertext, flip(aad, bit), tag); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("aad bit %d flipped: got %v, want ErrAuthenticationFailed", bit, err)
		}
	}
}

func TestAEAD_ArgumentValidation(t *testing.T) {
	key := randBytes(t, AEADKeySize)
	iv := randBytes(t, AEADIVSize)
	plaintext := []byte("payload")
	aad := []byte("aad")

	ciphertext, tag, err := EncryptA128CBCHS256(key, iv, plaintext, aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	encryptCases := []struct {
		name                    string
		key, iv, plaintext, aad []byte
	}{
		{"nil key", nil, iv, plaintext, aad},
		{"short key", key[:31], iv, plaintext, aad},
		{"long key", append(key, 0), iv, plaintext, aad},
		{"nil iv", key, nil, plaintext, aad},
		{"short iv", key, iv[:15], plaintext, aad},
		{"empty plaintext", key, iv, nil, aad},
		{"empty aad", key, iv, plaintext, nil},
	}
	for _, tc := range encryptCases {
		t.Run("encrypt "+tc.name, func(t *testing.T) {
			if _, _, err := EncryptA128CBCHS256(tc.key, tc.iv, tc.plaintext, tc.aad); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("got %v, want ErrInvalidArgument", err)
			}
		})
	}

	decryptCases := []struct {
		name                          string
		key, iv, ciphertext, aad, tag []byte
	}{
		{"nil key", nil, iv, ciphertext, aad, tag},
		{"short key", key[:16], iv, ciphertext, aad, tag},
		{"nil iv", key, nil, ciphertext, aad, tag},
		{"empty ciphertext", key, iv, nil, aad, tag},
		{"unaligned ciphertext", key, iv, ciphertext[:15], aad, tag},
		{"empty aad", key, iv, ciphertext, nil, tag},
		{"nil tag", key, iv, ciphertext, aad, nil},
		{"short tag", key, iv, ciphertext, aad, tag[:15]},
	}
	for _, tc := range decryptCases {
		t.Run("decrypt "+tc.name, func(t *testing.T) {
			if _, err := DecryptA128CBCHS256(tc.key, tc.iv, tc.ciphertext, tc.aad, tc.tag); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestAEAD_WrongKeyFails(t *testing.T) {
	key := randBytes(t, AEADKeySize)
	iv := randBytes(t, AEADIVSize)
	aad := []byte("aad")

	ciphertext, tag, err := EncryptA128CBCHS256(key, iv, []byte("secret"), aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	other := randBytes(t, AEADKeySize)
	if _, err := DecryptA128CBCHS256(other, iv, ciphertext, aad, tag); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("wrong key: got %v, want ErrAuthenticationFailed", err)
	}
}
