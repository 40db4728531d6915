// Package canonical provides deterministic JSON encoding per RFC 8785 (JCS).
//
// Every hash and signature in the package format is computed over canonical
// bytes, so Encode must be a pure function of the logical value: independent
// of map insertion order, struct field order, or platform.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Encode serializes v to canonical JSON bytes.
// Map keys are sorted recursively and insignificant whitespace is removed,
// so two logically equal values always encode to identical bytes.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Transform canonicalizes already-serialized JSON bytes.
// Used to verify signatures over bytes read from an archive without
// round-tripping them through Go structs.
func Transform(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Decode is the left inverse of Encode for any value Encode produced.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("canonical: unmarshal: %w", err)
	}
	return nil
}

// Digest returns the lowercase hex SHA-256 of the canonical encoding of v.
func Digest(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
