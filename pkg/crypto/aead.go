package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher identifies a supported AEAD algorithm. The set is a closed
// enumeration resolved once when a package is built or opened, never by
// per-call string comparison.
type Cipher int

const (
	// CipherAES256GCM is AES-256 in Galois/Counter mode.
	CipherAES256GCM Cipher = iota
	// CipherChaCha20Poly1305 is ChaCha20-Poly1305 (RFC 8439).
	CipherChaCha20Poly1305
)

const (
	// NonceSize is the AEAD nonce size (96 bits for both supported ciphers).
	NonceSize = 12

	// TagSize is the AEAD authentication tag size (128 bits for both).
	TagSize = 16
)

var (
	ErrUnsupportedCipher = errors.New("unsupported cipher")

	// ErrDecryptionFailed is returned on AEAD authentication failure.
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")

	ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce and tag")
)

// ParseCipher resolves a cipher identifier string from a manifest or CLI flag.
func ParseCipher(name string) (Cipher, error) {
	switch name {
	case "AES-256-GCM", "":
		return CipherAES256GCM, nil
	case "ChaCha20-Poly1305":
		return CipherChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
	}
}

// String returns the identifier recorded in payload descriptors.
func (c Cipher) String() string {
	switch c {
	case CipherAES256GCM:
		return "AES-256-GCM"
	case CipherChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "unknown"
	}
}

func (c Cipher) aead(key []byte) (cipher.AEAD, error) {
	switch c {
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aes cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case CipherChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, ErrUnsupportedCipher
	}
}

// Encrypt encrypts plaintext under key with a fresh random nonce.
// The output is nonce || ciphertext || tag, the framing stored in payload
// entries. The nonce is never reused under the same key because every
// payload is encrypted under its own fresh DEK.
func Encrypt(c Cipher, key, plaintext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag after the nonce prefix.
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. The input must carry the nonce prefix written
// by Encrypt; an authentication failure returns ErrDecryptionFailed.
func Decrypt(c Cipher, key, data []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(data) < NonceSize+TagSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
