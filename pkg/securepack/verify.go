package securepack

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/fleetml/securepack/pkg/canonical"
	"github.com/fleetml/securepack/pkg/container"
	"github.com/fleetml/securepack/pkg/crypto"
	"github.com/fleetml/securepack/pkg/manifest"
)

// VerifyResult reports the outcome of a full package verification.
type VerifyResult struct {
	// OK means every integrity check passed.
	OK bool

	// Authenticated means the manifest carried a signature that verified
	// against the producer key embedded in it. An unsigned package can be
	// OK without being Authenticated.
	Authenticated bool

	Reason string
}

func failed(err error) (*VerifyResult, error) {
	return &VerifyResult{OK: false, Reason: err.Error()}, err
}

// Verify runs the full integrity and authenticity check on the package at
// path: manifest decoding, inventory hashes in both directions, the
// unknown-entry whitelist, the recipients block, and the manifest
// signature. It fails closed on the first violation.
func Verify(path string, opts ...container.Option) (*VerifyResult, error) {
	r, err := container.OpenReader(path, opts...)
	if err != nil {
		return failed(fmt.Errorf("%w: %s", ErrInvalidArchive, err))
	}
	defer r.Close()

	rawManifest, m, err := readManifest(r)
	if err != nil {
		return failed(err)
	}

	if err := checkInventory(r, m); err != nil {
		return failed(err)
	}
	if err := checkRecipients(r); err != nil {
		return failed(err)
	}
	return checkSignature(r, rawManifest, m)
}

func readManifest(r *container.Reader) ([]byte, *manifest.Manifest, error) {
	raw, err := r.ReadEntry(container.ManifestEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrManifestNotFound, err)
	}
	m, err := manifest.FromJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidManifest, err)
	}
	if m.FormatVersion != manifest.FormatVersion {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, m.FormatVersion)
	}
	if m.FileInventory == nil {
		return nil, nil, fmt.Errorf("%w: missing file inventory", ErrInvalidManifest)
	}
	return raw, m, nil
}

// checkInventory recomputes every non-reserved entry hash and compares the
// result against the manifest in both directions. The inventory is also a
// whitelist: an entry it does not name fails verification outright.
func checkInventory(r *container.Reader, m *manifest.Manifest) error {
	hashes, err := r.HashEntries()
	if err != nil {
		return err
	}
	for name, want := range m.FileInventory {
		got, ok := hashes[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingEntry, name)
		}
		if got != want {
			return fmt.Errorf("%w: %s", ErrInventoryMismatch, name)
		}
	}
	for name := range hashes {
		if _, ok := m.FileInventory[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnregisteredEntry, name)
		}
	}
	return nil
}

func checkRecipients(r *container.Reader) error {
	raw, err := r.ReadEntry(recipientsEntry)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecipients, err)
	}
	set, err := manifest.RecipientsFromJSON(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecipients, err)
	}
	if len(set.Recipients) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// checkSignature verifies the signature block against the producer key
// embedded in the manifest. A package that never claimed a producer key
// passes as unauthenticated; a package that claims one but is missing or
// failing its signature is rejected, so stripping signature.json from a
// signed package cannot downgrade it.
func checkSignature(r *container.Reader, rawManifest []byte, m *manifest.Manifest) (*VerifyResult, error) {
	hasSig := r.HasEntry(container.SignatureEntry)

	if m.ProducerPublicKey == "" {
		if hasSig {
			return failed(fmt.Errorf("%w: signature present but manifest names no producer key", ErrSignatureInvalid))
		}
		return &VerifyResult{OK: true, Authenticated: false, Reason: "OK (unauthenticated)"}, nil
	}
	if !hasSig {
		return failed(fmt.Errorf("%w: signature block missing for signed manifest", ErrSignatureInvalid))
	}

	rawSig, err := r.ReadEntry(container.SignatureEntry)
	if err != nil {
		return failed(fmt.Errorf("%w: %s", ErrSignatureInvalid, err))
	}
	block, err := manifest.SignatureFromJSON(rawSig)
	if err != nil {
		return failed(fmt.Errorf("%w: %s", ErrSignatureInvalid, err))
	}
	if block.Algorithm != crypto.AlgorithmEd25519 {
		return failed(fmt.Errorf("%w: unsupported algorithm %q", ErrSignatureInvalid, block.Algorithm))
	}

	pub, err := base64.StdEncoding.DecodeString(m.ProducerPublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return failed(fmt.Errorf("%w: malformed producer public key", ErrSignatureInvalid))
	}
	sig, err := base64.StdEncoding.DecodeString(block.Signature)
	if err != nil {
		return failed(fmt.Errorf("%w: malformed signature encoding", ErrSignatureInvalid))
	}

	canon, err := canonical.Transform(rawManifest)
	if err != nil {
		return failed(fmt.Errorf("%w: %s", ErrInvalidManifest, err))
	}
	if !crypto.Verify(pub, canon, sig) {
		return failed(ErrSignatureInvalid)
	}
	return &VerifyResult{OK: true, Authenticated: true, Reason: "OK"}, nil
}
