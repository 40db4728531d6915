// Package securepack assembles, verifies and opens secure model packages:
// ZIP archives carrying AEAD-encrypted payloads, per-recipient wrapped
// keys, an optional policy, and a signed manifest that commits to every
// entry's SHA-256.
//
// The package keeps no mutable state. Create, Verify, Decrypt and Inspect
// each own their file handles for the duration of the call, so concurrent
// calls on distinct packages need no coordination; concurrent writers of
// the same output path are the caller's problem.
package securepack

import (
	"fmt"

	"github.com/fleetml/securepack/pkg/container"
	"github.com/fleetml/securepack/pkg/manifest"
)

// Inspect returns the manifest of the package at path without checking
// hashes or the signature. Use Verify before trusting anything it says.
func Inspect(path string, opts ...container.Option) (*manifest.Manifest, error) {
	r, err := container.OpenReader(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArchive, err)
	}
	defer r.Close()

	_, m, err := readManifest(r)
	if err != nil {
		return nil, err
	}
	return m, nil
}
