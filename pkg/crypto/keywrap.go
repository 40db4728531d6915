package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DEKSize is the data-encryption-key size (256 bits for the AEADs below).
	DEKSize = 32

	// keyWrapBlockSize is the 64-bit semiblock size of RFC 3394.
	keyWrapBlockSize = 8
)

// keyWrapIV is the RFC 3394 default initial value. Its survival through
// unwrap is the wrap's integrity check.
var keyWrapIV = [keyWrapBlockSize]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

var (
	// ErrKeyUnwrap is returned when the wrapped key fails its integrity
	// check. Callers must treat this as a hard failure; no key material
	// is ever returned alongside it.
	ErrKeyUnwrap = errors.New("key unwrap failed: integrity check mismatch")

	ErrInvalidWrapInput = errors.New("key wrap input must be a multiple of 8 bytes, at least 16")
)

// GenerateDEK returns a fresh random 256-bit data encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("generate DEK: %w", err)
	}
	return dek, nil
}

// WrapKey wraps dek under kek using AES key wrap (RFC 3394).
// The construction is deterministic: wrapping the same key under the same
// KEK always yields the same bytes, which keeps package creation
// reproducible given fixed inputs.
func WrapKey(kek, dek []byte) ([]byte, error) {
	if len(dek)%keyWrapBlockSize != 0 || len(dek) < 2*keyWrapBlockSize {
		return nil, ErrInvalidWrapInput
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("key wrap cipher: %w", err)
	}

	n := len(dek) / keyWrapBlockSize
	r := make([]byte, len(dek))
	copy(r, dek)

	var a [keyWrapBlockSize]byte
	copy(a[:], keyWrapIV[:])

	var b [2 * keyWrapBlockSize]byte
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(b[:keyWrapBlockSize], a[:])
			copy(b[keyWrapBlockSize:], r[(i-1)*keyWrapBlockSize:i*keyWrapBlockSize])
			block.Encrypt(b[:], b[:])

			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(a[:], binary.BigEndian.Uint64(b[:keyWrapBlockSize])^t)
			copy(r[(i-1)*keyWrapBlockSize:i*keyWrapBlockSize], b[keyWrapBlockSize:])
		}
	}

	out := make([]byte, keyWrapBlockSize+len(dek))
	copy(out[:keyWrapBlockSize], a[:])
	copy(out[keyWrapBlockSize:], r)
	return out, nil
}

// UnwrapKey reverses WrapKey. A wrong KEK or tampered ciphertext returns
// ErrKeyUnwrap rather than garbage key material.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%keyWrapBlockSize != 0 || len(wrapped) < 3*keyWrapBlockSize {
		return nil, ErrKeyUnwrap
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("key unwrap cipher: %w", err)
	}

	n := len(wrapped)/keyWrapBlockSize - 1
	r := make([]byte, n*keyWrapBlockSize)
	copy(r, wrapped[keyWrapBlockSize:])

	var a [keyWrapBlockSize]byte
	copy(a[:], wrapped[:keyWrapBlockSize])

	var b [2 * keyWrapBlockSize]byte
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(b[:keyWrapBlockSize], binary.BigEndian.Uint64(a[:])^t)
			copy(b[keyWrapBlockSize:], r[(i-1)*keyWrapBlockSize:i*keyWrapBlockSize])
			block.Decrypt(b[:], b[:])

			copy(a[:], b[:keyWrapBlockSize])
			copy(r[(i-1)*keyWrapBlockSize:i*keyWrapBlockSize], b[keyWrapBlockSize:])
		}
	}

	if subtle.ConstantTimeCompare(a[:], keyWrapIV[:]) != 1 {
		Zeroize(r)
		return nil, ErrKeyUnwrap
	}
	return r, nil
}
