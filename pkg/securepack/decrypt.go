package securepack

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetml/securepack/pkg/container"
	"github.com/fleetml/securepack/pkg/crypto"
	"github.com/fleetml/securepack/pkg/manifest"
)

// Decrypt recovers every payload in the package at path for the named
// recipient, writing plaintexts under destDir, and returns the written
// paths. Each payload's ciphertext hash, wrapped key, AEAD tag and
// plaintext hash are all checked before anything for that payload touches
// disk. priv is the recipient's raw 32-byte X25519 private key; the caller
// keeps ownership of it.
func Decrypt(path, recipientID string, priv []byte, destDir string, opts ...container.Option) ([]string, error) {
	r, err := container.OpenReader(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArchive, err)
	}
	defer r.Close()

	_, m, err := readManifest(r)
	if err != nil {
		return nil, err
	}

	env, kek, err := openEnvelope(r, recipientID, priv, m.PolicyHash)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(kek)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var written []string
	for _, desc := range m.Payloads {
		out, err := decryptPayload(r, desc, env, kek, destDir)
		if err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

// openEnvelope locates the recipient's envelope, re-derives the shared KEK
// from the package's ephemeral key and salt, and checks the policy binding
// when the manifest carries a policy. The returned KEK is the caller's to
// zeroize.
func openEnvelope(r *container.Reader, recipientID string, priv []byte, policyHash string) (manifest.RecipientEnvelope, []byte, error) {
	raw, err := r.ReadEntry(recipientsEntry)
	if err != nil {
		return manifest.RecipientEnvelope{}, nil, fmt.Errorf("%w: %s", ErrInvalidRecipients, err)
	}
	set, err := manifest.RecipientsFromJSON(raw)
	if err != nil {
		return manifest.RecipientEnvelope{}, nil, fmt.Errorf("%w: %s", ErrInvalidRecipients, err)
	}

	env, ok := set.Find(recipientID)
	if !ok {
		return manifest.RecipientEnvelope{}, nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientID)
	}

	ephPub, err := base64.StdEncoding.DecodeString(set.EphemeralPublicKey)
	if err != nil {
		return manifest.RecipientEnvelope{}, nil, fmt.Errorf("%w: malformed ephemeral public key", ErrInvalidRecipients)
	}
	salt, err := base64.StdEncoding.DecodeString(set.KDFSalt)
	if err != nil {
		return manifest.RecipientEnvelope{}, nil, fmt.Errorf("%w: malformed kdf salt", ErrInvalidRecipients)
	}

	kek, err := crypto.DeriveKEK(priv, ephPub, salt)
	if err != nil {
		return manifest.RecipientEnvelope{}, nil, err
	}

	if policyHash != "" {
		if err := crypto.VerifyPolicyBinding(kek, policyHash, env.PolicyBinding); err != nil {
			crypto.Zeroize(kek)
			return manifest.RecipientEnvelope{}, nil, err
		}
	}
	return env, kek, nil
}

func decryptPayload(r *container.Reader, desc manifest.PayloadDescriptor, env manifest.RecipientEnvelope, kek []byte, destDir string) (string, error) {
	entry := manifest.EntryName(desc.PayloadID)
	enc, err := r.ReadEntry(entry)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingEntry, entry)
	}
	if crypto.SHA256Hex(enc) != desc.EncHash {
		return "", fmt.Errorf("%w: %s", ErrCiphertextHashMismatch, desc.PayloadID)
	}

	wrappedB64, ok := env.WrappedKeys[desc.PayloadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoWrappedKey, desc.PayloadID)
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed wrapped key for %s", ErrInvalidRecipients, desc.PayloadID)
	}

	cipher, err := crypto.ParseCipher(desc.Cipher)
	if err != nil {
		return "", fmt.Errorf("%w: payload %s: %s", ErrInvalidManifest, desc.PayloadID, err)
	}

	dek, err := crypto.UnwrapKey(kek, wrapped)
	if err != nil {
		return "", fmt.Errorf("payload %s: %w", desc.PayloadID, err)
	}
	plaintext, err := crypto.Decrypt(cipher, dek, enc)
	crypto.Zeroize(dek)
	if err != nil {
		return "", fmt.Errorf("payload %s: %w", desc.PayloadID, err)
	}

	if crypto.SHA256Hex(plaintext) != desc.PlaintextHash {
		return "", fmt.Errorf("%w: %s", ErrPlaintextHashMismatch, desc.PayloadID)
	}

	// Only the base name of the recorded filename is honored.
	name := filepath.Base(desc.Filename)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return "", fmt.Errorf("%w: payload %s has unusable filename %q", ErrInvalidManifest, desc.PayloadID, desc.Filename)
	}
	target, err := container.SafeJoin(destDir, name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target, plaintext, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
