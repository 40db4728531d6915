package manifest

// PayloadDescriptor describes one encrypted payload entry. Immutable once
// written: corrections require emitting a new package.
type PayloadDescriptor struct {
	// PayloadID is unique within the package and names the archive entry
	// (payload/<id>.enc) and the wrapped-key slot in each recipient envelope.
	PayloadID string `json:"payload_id"`

	// LogicalType is a free-form tag such as "adapter" or "policy-head".
	LogicalType string `json:"logical_type"`

	// Filename is the name the plaintext is restored under. Directory
	// components are stripped before extraction.
	Filename string `json:"filename"`

	// Cipher identifies the AEAD algorithm ("AES-256-GCM" or
	// "ChaCha20-Poly1305").
	Cipher string `json:"cipher"`

	// EncHash is the SHA-256 of the stored entry bytes (nonce || ciphertext || tag).
	EncHash string `json:"enc_hash"`

	// PlaintextHash is the SHA-256 of the original content, re-checked
	// after decryption as an integrity check independent of the AEAD tag.
	PlaintextHash string `json:"plaintext_hash"`
}

// EntryName returns the archive entry path for a payload id.
func EntryName(payloadID string) string {
	return "payload/" + payloadID + ".enc"
}
