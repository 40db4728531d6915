package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// SigningKeySeedSize is the raw Ed25519 private seed size in bytes.
	SigningKeySeedSize = ed25519.SeedSize

	// PublicKeySize is the raw public key size for both Ed25519 and X25519.
	PublicKeySize = 32

	// AlgorithmEd25519 is the signature algorithm tag used in signature blocks.
	AlgorithmEd25519 = "ed25519"
)

var (
	ErrInvalidSigningKey = errors.New("invalid ed25519 key size")
)

// GenerateSigningKeypair generates a fresh Ed25519 keypair.
func GenerateSigningKeypair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate signing keypair: %w", err)
	}
	return priv, pub, nil
}

// Sign signs data with an Ed25519 private key.
// Ed25519 is deterministic, so there is no nonce to manage or reuse.
func Sign(priv ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidSigningKey
	}
	return ed25519.Sign(priv, data), nil
}

// Verify reports whether sig is a valid Ed25519 signature of data under pub.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// Signer is the capability a package producer needs to authenticate a
// manifest. Key material never has to be exportable: a file-backed signer
// holds the key in memory, while an HSM or KMS implementation can satisfy
// the same interface without exposing bytes.
type Signer interface {
	// Sign signs the canonically-encoded manifest bytes.
	Sign(data []byte) ([]byte, error)

	// Public returns the raw Ed25519 public key embedded in the manifest.
	Public() ed25519.PublicKey

	// KeyID identifies the signing key in the signature block.
	KeyID() string
}

// FileSigner is a Signer backed by an in-memory Ed25519 private key,
// typically loaded from a raw seed file.
type FileSigner struct {
	priv  ed25519.PrivateKey
	keyID string
}

// NewFileSigner wraps an Ed25519 private key as a Signer.
func NewFileSigner(priv ed25519.PrivateKey, keyID string) (*FileSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidSigningKey
	}
	if keyID == "" {
		keyID = "key-1"
	}
	return &FileSigner{priv: priv, keyID: keyID}, nil
}

// LoadFileSigner reads a raw 32-byte Ed25519 seed file and wraps it as a Signer.
func LoadFileSigner(path, keyID string) (*FileSigner, error) {
	priv, err := LoadSigningKey(path)
	if err != nil {
		return nil, err
	}
	return NewFileSigner(priv, keyID)
}

func (s *FileSigner) Sign(data []byte) ([]byte, error) {
	return Sign(s.priv, data)
}

func (s *FileSigner) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *FileSigner) KeyID() string {
	return s.keyID
}
