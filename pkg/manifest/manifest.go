// Package manifest defines the JSON structures stored inside a secure
// package archive: the manifest itself, payload and evidence descriptors,
// the recipient envelope set, and the signature block.
//
// The manifest is written once, after every other entry exists (its file
// inventory must cover them), and never mutated after signing. Hashing and
// signing always go through CanonicalBytes, never the raw JSON rendering.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetml/securepack/pkg/canonical"
)

const (
	// FormatVersion is the archive format generation this library reads
	// and writes. Earlier binary-framed generations are not supported.
	FormatVersion = "1.0"
)

// Manifest is the package's self-describing metadata. FileInventory maps
// every non-reserved archive entry to its SHA-256 and doubles as a
// whitelist: an entry absent from it must fail verification.
type Manifest struct {
	PackageID     string `json:"package_id"`
	FormatVersion string `json:"format_version"`
	CreatedAt     int64  `json:"created_at"`

	ProducerID string `json:"producer_id"`
	// ProducerPublicKey is the base64 raw Ed25519 public key the signature
	// block is checked against. Empty for unsigned packages.
	ProducerPublicKey string `json:"producer_signing_public_key,omitempty"`

	BaseModelIDs []string `json:"base_model_ids,omitempty"`

	PolicyID      string `json:"policy_id,omitempty"`
	PolicyVersion string `json:"policy_version,omitempty"`
	PolicyHash    string `json:"policy_hash,omitempty"`

	Payloads []PayloadDescriptor  `json:"payloads"`
	Evidence []EvidenceDescriptor `json:"evidence,omitempty"`

	FileInventory map[string]string `json:"file_inventory"`
}

// New creates a manifest with a fresh package id and creation timestamp.
func New(producerID string) *Manifest {
	return &Manifest{
		PackageID:     uuid.New().String(),
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().Unix(),
		ProducerID:    producerID,
		Payloads:      []PayloadDescriptor{},
		FileInventory: map[string]string{},
	}
}

// ToJSON serializes the manifest for storage in the archive.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON deserializes a manifest read from the archive.
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// CanonicalBytes returns the deterministic encoding used for hashing and
// signing. Two manifests with the same logical content produce identical
// bytes regardless of how they were constructed.
func (m *Manifest) CanonicalBytes() ([]byte, error) {
	return canonical.Encode(m)
}

// Digest returns the hex SHA-256 of the canonical encoding.
func (m *Manifest) Digest() (string, error) {
	return canonical.Digest(m)
}

// FindPayload returns the descriptor with the given payload id.
func (m *Manifest) FindPayload(payloadID string) (PayloadDescriptor, bool) {
	for _, p := range m.Payloads {
		if p.PayloadID == payloadID {
			return p, true
		}
	}
	return PayloadDescriptor{}, false
}
