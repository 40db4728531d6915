package manifest

import (
	"encoding/json"
	"fmt"
)

// SignatureBlock authenticates the canonically-encoded manifest bytes.
// Its absence is a valid state (an unauthenticated package), distinct from
// a signature that fails to verify.
type SignatureBlock struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"key_id"`
	// Signature is the base64 Ed25519 signature over the canonical manifest.
	Signature string `json:"signature"`
}

// ToJSON serializes the signature block for storage in the archive.
func (s *SignatureBlock) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// SignatureFromJSON deserializes a signature block read from the archive.
func SignatureFromJSON(data []byte) (*SignatureBlock, error) {
	var s SignatureBlock
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse signature block: %w", err)
	}
	return &s, nil
}
