// Package crypto provides the cryptographic primitives for the secure
// package format: hashing, Ed25519 signing, X25519 key agreement with
// HKDF expansion, RFC 3394 key wrapping, and selectable AEAD encryption.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashChunkSize is the read size used by the streaming hash helpers.
const hashChunkSize = 64 * 1024

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexReader hashes r to completion with bounded memory.
func SHA256HexReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256HexFile hashes the file at path without loading it into memory.
func SHA256HexFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return SHA256HexReader(f)
}
