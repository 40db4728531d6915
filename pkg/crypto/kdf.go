package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KEKSize is the derived key-encryption-key size (AES-256).
	KEKSize = 32

	// KDFSaltSize is the per-package random salt length.
	// A fresh salt lets the same recipient key be reused across many
	// packages without the derived KEKs ever colliding.
	KDFSaltSize = 16
)

// kekInfo is the fixed, versioned HKDF context string. Changing it is a
// format break and requires a new format version.
var kekInfo = []byte("securepack/v1 kek")

var (
	ErrLowOrderPoint = errors.New("x25519 produced an all-zero shared secret")
)

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, KDFSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKEK derives a 256-bit key-encryption key from an X25519 exchange
// between priv and peerPub, expanded with HKDF-SHA256 under the format's
// context string. The shared secret is wiped before returning.
func DeriveKEK(priv, peerPub, salt []byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("x25519 exchange: %w", err)
	}
	defer Zeroize(shared)

	// curve25519.X25519 already rejects the zero output for the basepoint
	// API, but check explicitly so a low-order peer key can never key the KDF.
	var zero [curve25519.PointSize]byte
	if subtle.ConstantTimeCompare(shared, zero[:]) == 1 {
		return nil, ErrLowOrderPoint
	}

	kek := make([]byte, KEKSize)
	r := hkdf.New(sha256.New, shared, salt, kekInfo)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return kek, nil
}
