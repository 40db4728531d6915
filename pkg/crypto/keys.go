package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
)

var (
	ErrInvalidKeyFile = errors.New("key file must contain exactly 32 raw bytes")
)

// GenerateExchangeKeypair generates a fresh X25519 keypair for key agreement.
// Both halves are raw 32-byte values.
func GenerateExchangeKeypair() (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("generate exchange keypair: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive exchange public key: %w", err)
	}
	return priv, pub, nil
}

// SaveKey writes raw key bytes to path with owner-only permissions.
func SaveKey(path string, key []byte) error {
	return os.WriteFile(path, key, 0o600)
}

// LoadRawKey reads a raw 32-byte key file (X25519 private or public,
// Ed25519 public, or an Ed25519 seed).
func LoadRawKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidKeyFile, path, len(data))
	}
	return data, nil
}

// LoadSigningKey reads a raw 32-byte Ed25519 seed file and expands it to a
// private key.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	seed, err := LoadRawKey(path)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// LoadVerifyKey reads a raw 32-byte Ed25519 public key file.
func LoadVerifyKey(path string) (ed25519.PublicKey, error) {
	pub, err := LoadRawKey(path)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(pub), nil
}
