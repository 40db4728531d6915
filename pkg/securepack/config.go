package securepack

import (
	"errors"
	"fmt"

	"github.com/fleetml/securepack/pkg/crypto"
)

// PayloadInput names one file to encrypt into the package.
type PayloadInput struct {
	// ID must be unique within the package. It names the archive entry and
	// the wrapped-key slot in every recipient envelope.
	ID string

	// LogicalType is a free-form tag recorded in the manifest, for example
	// "adapter" or "tokenizer".
	LogicalType string

	// Path is the plaintext file on disk.
	Path string

	// Cipher selects the AEAD. Empty means AES-256-GCM.
	Cipher crypto.Cipher
}

// Recipient is one party that will be able to decrypt the package.
type Recipient struct {
	ID string

	// PublicKey is the recipient's raw 32-byte X25519 public key.
	PublicKey []byte
}

// PolicyInput attaches a policy document to the package.
type PolicyInput struct {
	Path    string
	ID      string
	Version string
}

// CreateConfig carries everything Create needs. Zero values are rejected
// by Validate where the format requires them.
type CreateConfig struct {
	ProducerID string
	Payloads   []PayloadInput
	Recipients []Recipient

	// Signer signs the canonical manifest. Nil produces an unsigned
	// package, which verifies as unauthenticated.
	Signer crypto.Signer

	Policy        *PolicyInput
	EvidencePaths []string
	BaseModelIDs  []string

	// MaxEntrySize overrides the per-entry ceiling. Zero means the
	// container default.
	MaxEntrySize int64
}

// Validate checks the config before any file or key material is touched.
func (c *CreateConfig) Validate() error {
	if len(c.Payloads) == 0 {
		return errors.New("securepack: at least one payload is required")
	}
	if len(c.Recipients) == 0 {
		return ErrNoRecipients
	}

	seen := map[string]struct{}{}
	for _, p := range c.Payloads {
		if p.ID == "" {
			return errors.New("securepack: payload id must not be empty")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("securepack: duplicate payload id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Path == "" {
			return fmt.Errorf("securepack: payload %s has no source path", p.ID)
		}
	}

	for _, r := range c.Recipients {
		if r.ID == "" {
			return errors.New("securepack: recipient id must not be empty")
		}
		if len(r.PublicKey) != 32 {
			return fmt.Errorf("securepack: recipient %s public key must be 32 bytes, got %d", r.ID, len(r.PublicKey))
		}
	}

	if c.Policy != nil && c.Policy.Path == "" {
		return errors.New("securepack: policy has no source path")
	}
	return nil
}
