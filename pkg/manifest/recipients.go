package manifest

import (
	"encoding/json"
	"fmt"
)

// RecipientEnvelopeSet is the recipients blob: one ephemeral X25519 public
// key and one KDF salt shared by the whole package, plus a wrapped-key map
// per recipient. Recipients are fixed at creation time; adding one later
// means re-wrapping into a new package.
type RecipientEnvelopeSet struct {
	// EphemeralPublicKey is the base64 raw X25519 public key generated for
	// this package. Each recipient combines it with their private key to
	// re-derive the shared KEK.
	EphemeralPublicKey string `json:"ephemeral_public_key"`

	// KDFSalt is the base64 per-package HKDF salt.
	KDFSalt string `json:"kdf_salt"`

	Recipients []RecipientEnvelope `json:"recipients"`
}

// RecipientEnvelope holds one recipient's wrapped payload keys.
type RecipientEnvelope struct {
	RecipientID string `json:"recipient_id"`

	// WrappedKeys maps payload_id to the base64 RFC 3394 wrapping of that
	// payload's DEK under this recipient's KEK.
	WrappedKeys map[string]string `json:"wrapped_keys"`

	// PolicyBinding is Base64(HMAC-SHA256(KEK, policy_hash)), present only
	// when the package carries a policy.
	PolicyBinding string `json:"policy_binding,omitempty"`
}

// Find returns the envelope for a recipient id.
func (s *RecipientEnvelopeSet) Find(recipientID string) (RecipientEnvelope, bool) {
	for _, r := range s.Recipients {
		if r.RecipientID == recipientID {
			return r, true
		}
	}
	return RecipientEnvelope{}, false
}

// ToJSON serializes the envelope set for storage in the archive.
func (s *RecipientEnvelopeSet) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RecipientsFromJSON deserializes an envelope set read from the archive.
func RecipientsFromJSON(data []byte) (*RecipientEnvelopeSet, error) {
	var s RecipientEnvelopeSet
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse recipients: %w", err)
	}
	return &s, nil
}
