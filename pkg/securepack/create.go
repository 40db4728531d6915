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

// Entry names for package members that are covered by the file inventory.
const (
	recipientsEntry = "recipients.json"
	policyEntry     = "policy"
	policyHashEntry = "policy.hash"
)

// Receipt summarizes a successfully created package.
type Receipt struct {
	PackageID    string
	ManifestHash string
	// SignerKeyID is empty for unsigned packages.
	SignerKeyID string
}

// Create builds a package at outPath from cfg. The archive is assembled in
// a temporary file next to outPath and renamed into place only after every
// entry, the recipients block, the signature and the manifest have been
// written, so a failed create never leaves a partial package behind.
func Create(cfg *CreateConfig, outPath string) (*Receipt, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), filepath.Base(outPath)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("create temp package file: %w", err)
	}
	tmpPath := tmp.Name()
	receipt, err := create(cfg, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("finalize package: %w", err)
	}
	return receipt, nil
}

func create(cfg *CreateConfig, out *os.File) (*Receipt, error) {
	var opts []container.Option
	if cfg.MaxEntrySize > 0 {
		opts = append(opts, container.WithMaxEntrySize(cfg.MaxEntrySize))
	}
	w := container.NewWriter(out, opts...)

	m := manifest.New(cfg.ProducerID)
	m.BaseModelIDs = cfg.BaseModelIDs

	deks := map[string][]byte{}
	defer func() {
		for _, dek := range deks {
			crypto.Zeroize(dek)
		}
	}()

	for _, p := range cfg.Payloads {
		if err := addPayload(w, m, p, deks); err != nil {
			return nil, err
		}
	}

	if cfg.Policy != nil {
		if err := addPolicy(w, m, cfg.Policy); err != nil {
			return nil, err
		}
	}

	for _, path := range cfg.EvidencePaths {
		if err := addEvidence(w, m, path); err != nil {
			return nil, err
		}
	}

	if err := addRecipients(w, cfg.Recipients, deks, m.PolicyHash); err != nil {
		return nil, err
	}

	// Every inventoried entry now exists; the manifest can commit to them.
	m.FileInventory = w.Inventory()

	receipt := &Receipt{PackageID: m.PackageID}
	if cfg.Signer != nil {
		m.ProducerPublicKey = base64.StdEncoding.EncodeToString(cfg.Signer.Public())
		receipt.SignerKeyID = cfg.Signer.KeyID()
	}

	canon, err := m.CanonicalBytes()
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	receipt.ManifestHash = crypto.SHA256Hex(canon)

	if cfg.Signer != nil {
		sig, err := cfg.Signer.Sign(canon)
		if err != nil {
			return nil, fmt.Errorf("sign manifest: %w", err)
		}
		block := manifest.SignatureBlock{
			Algorithm: crypto.AlgorithmEd25519,
			KeyID:     cfg.Signer.KeyID(),
			Signature: base64.StdEncoding.EncodeToString(sig),
		}
		blockJSON, err := block.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("encode signature block: %w", err)
		}
		if err := w.WriteEntry(container.SignatureEntry, blockJSON); err != nil {
			return nil, err
		}
	}

	manifestJSON, err := m.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := w.WriteEntry(container.ManifestEntry, manifestJSON); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return receipt, nil
}

func addPayload(w *container.Writer, m *manifest.Manifest, p PayloadInput, deks map[string][]byte) error {
	plaintext, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read payload %s: %w", p.ID, err)
	}
	plainHash := crypto.SHA256Hex(plaintext)

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return err
	}
	deks[p.ID] = dek

	enc, err := crypto.Encrypt(p.Cipher, dek, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt payload %s: %w", p.ID, err)
	}

	entry := manifest.EntryName(p.ID)
	if err := w.WriteEntry(entry, enc); err != nil {
		return err
	}

	m.Payloads = append(m.Payloads, manifest.PayloadDescriptor{
		PayloadID:     p.ID,
		LogicalType:   p.LogicalType,
		Filename:      filepath.Base(p.Path),
		Cipher:        p.Cipher.String(),
		EncHash:       crypto.SHA256Hex(enc),
		PlaintextHash: plainHash,
	})
	return nil
}

func addPolicy(w *container.Writer, m *manifest.Manifest, p *PolicyInput) error {
	policy, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	hash := crypto.SHA256Hex(policy)

	if err := w.WriteEntry(policyEntry, policy); err != nil {
		return err
	}
	if err := w.WriteEntry(policyHashEntry, []byte(hash)); err != nil {
		return err
	}

	m.PolicyID = p.ID
	m.PolicyVersion = p.Version
	m.PolicyHash = hash
	return nil
}

func addEvidence(w *container.Writer, m *manifest.Manifest, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read evidence %s: %w", path, err)
	}
	name := filepath.Base(path)
	if err := w.WriteEntry(manifest.EvidenceEntryName(name), data); err != nil {
		return err
	}
	m.Evidence = append(m.Evidence, manifest.EvidenceDescriptor{
		Type:     "attachment",
		Filename: name,
		Hash:     crypto.SHA256Hex(data),
	})
	return nil
}

// addRecipients generates the package's ephemeral keypair and salt, derives
// one KEK per recipient and wraps every payload DEK under it, then writes
// the recipients block as an inventoried entry.
func addRecipients(w *container.Writer, recipients []Recipient, deks map[string][]byte, policyHash string) error {
	ephPriv, ephPub, err := crypto.GenerateExchangeKeypair()
	if err != nil {
		return err
	}
	defer crypto.Zeroize(ephPriv)

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	set := manifest.RecipientEnvelopeSet{
		EphemeralPublicKey: base64.StdEncoding.EncodeToString(ephPub),
		KDFSalt:            base64.StdEncoding.EncodeToString(salt),
	}

	for _, r := range recipients {
		env, err := wrapForRecipient(r, ephPriv, salt, deks, policyHash)
		if err != nil {
			return err
		}
		set.Recipients = append(set.Recipients, env)
	}

	setJSON, err := set.ToJSON()
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	return w.WriteEntry(recipientsEntry, setJSON)
}

func wrapForRecipient(r Recipient, ephPriv, salt []byte, deks map[string][]byte, policyHash string) (manifest.RecipientEnvelope, error) {
	kek, err := crypto.DeriveKEK(ephPriv, r.PublicKey, salt)
	if err != nil {
		return manifest.RecipientEnvelope{}, fmt.Errorf("derive key for recipient %s: %w", r.ID, err)
	}
	defer crypto.Zeroize(kek)

	env := manifest.RecipientEnvelope{
		RecipientID: r.ID,
		WrappedKeys: map[string]string{},
	}
	for payloadID, dek := range deks {
		wrapped, err := crypto.WrapKey(kek, dek)
		if err != nil {
			return manifest.RecipientEnvelope{}, fmt.Errorf("wrap key for recipient %s: %w", r.ID, err)
		}
		env.WrappedKeys[payloadID] = base64.StdEncoding.EncodeToString(wrapped)
	}
	if policyHash != "" {
		env.PolicyBinding = crypto.PolicyBinding(kek, policyHash)
	}
	return env, nil
}
