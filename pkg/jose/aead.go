package jose

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// A128CBC-HS256 sizes per RFC 7518 section 5.2.3. The 32-byte input key
// splits into a 16-byte HMAC-SHA256 key (first half) and a 16-byte
// AES-128-CBC key (second half).
const (
	AEADKeySize = 32
	AEADIVSize  = 16
	AEADTagSize = 16
)

// EncryptA128CBCHS256 encrypts plaintext under the CBC-then-HMAC
// construction. The plaintext is PKCS#7-padded to the AES block size and
// encrypted with AES-128-CBC; the tag is HMAC-SHA256 over
// aad || iv || ciphertext || big-endian 64-bit bit-length of aad,
// truncated to 16 bytes.
func EncryptA128CBCHS256(key, iv, plaintext, aad []byte) (ciphertext, tag []byte, err error) {
	if err := checkAEADArgs(key, iv); err != nil {
		return nil, nil, err
	}
	if len(plaintext) == 0 {
		return nil, nil, fmt.Errorf("%w: plaintext is required", ErrInvalidArgument)
	}
	if len(aad) == 0 {
		return nil, nil, fmt.Errorf("%w: associated data is required", ErrInvalidArgument)
	}

	macKey, aesKey := key[:16], key[16:]

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, computeTag(macKey, iv, ciphertext, aad), nil
}

// DecryptA128CBCHS256 authenticates and decrypts a ciphertext produced by
// EncryptA128CBCHS256. The tag is recomputed and compared in constant time
// before any decryption work; on mismatch no plaintext is touched.
func DecryptA128CBCHS256(key, iv, ciphertext, aad, tag []byte) ([]byte, error) {
	if err := checkAEADArgs(key, iv); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext is required", ErrInvalidArgument)
	}
	if len(aad) == 0 {
		return nil, fmt.Errorf("%w: associated data is required", ErrInvalidArgument)
	}
	if len(tag) != AEADTagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrInvalidArgument, AEADTagSize, len(tag))
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrInvalidArgument, len(ciphertext))
	}

	macKey, aesKey := key[:16], key[16:]

	// Authenticate first. hmac.Equal is constant time.
	expected := computeTag(macKey, iv, ciphertext, aad)
	if !hmac.Equal(expected, tag) {
		return nil, fmt.Errorf("%w: tag mismatch", ErrAuthenticationFailed)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		// Padding cannot be wrong once the tag verified; corrupt state anyway.
		return nil, err
	}
	return unpadded, nil
}

func checkAEADArgs(key, iv []byte) error {
	if len(key) != AEADKeySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidArgument, AEADKeySize, len(key))
	}
	if len(iv) != AEADIVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidArgument, AEADIVSize, len(iv))
	}
	return nil
}

// computeTag produces the truncated authentication tag over
// aad || iv || ciphertext || BE64(bitlen(aad)).
func computeTag(macKey, iv, ciphertext, aad []byte) []byte {
	var aadBits [8]byte
	binary.BigEndian.PutUint64(aadBits[:], uint64(len(aad))*8)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(aad)
	mac.Write(iv)
	mac.Write(ciphertext)
	mac.Write(aadBits[:])
	return mac.Sum(nil)[:AEADTagSize]
}

func padPKCS7(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length %d", ErrAuthenticationFailed, len(data))
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrAuthenticationFailed)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: invalid padding", ErrAuthenticationFailed)
		}
	}
	return data[:len(data)-pad], nil
}
