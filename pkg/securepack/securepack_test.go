package securepack

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetml/securepack/pkg/crypto"
)

const secretContent = "SECRET_MODEL_DATA_123"

type fixture struct {
	cfg       *CreateConfig
	pkgPath   string
	recipPriv map[string][]byte
}

// buildPackage creates a signed two-recipient package with one payload
// holding secretContent, plus any extra payload files handed in.
func buildPackage(t *testing.T, mutate func(cfg *CreateConfig)) *fixture {
	t.Helper()
	dir := t.TempDir()

	payloadPath := filepath.Join(dir, "adapter.bin")
	if err := os.WriteFile(payloadPath, []byte(secretContent), 0o644); err != nil {
		t.Fatalf("write payload fixture: %v", err)
	}

	priv, _, err := crypto.GenerateSigningKeypair()
	if err != nil {
		t.Fatalf("generate signing keypair: %v", err)
	}
	signer, err := crypto.NewFileSigner(priv, "producer-key-1")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	f := &fixture{recipPriv: map[string][]byte{}}
	cfg := &CreateConfig{
		ProducerID: "producer-1",
		Payloads: []PayloadInput{
			{ID: "p1", LogicalType: "adapter", Path: payloadPath},
		},
		Signer: signer,
	}
	for _, id := range []string{"alice", "bob"} {
		rPriv, rPub, err := crypto.GenerateExchangeKeypair()
		if err != nil {
			t.Fatalf("generate exchange keypair: %v", err)
		}
		f.recipPriv[id] = rPriv
		cfg.Recipients = append(cfg.Recipients, Recipient{ID: id, PublicKey: rPub})
	}
	if mutate != nil {
		mutate(cfg)
	}

	f.cfg = cfg
	f.pkgPath = filepath.Join(dir, "model.pkg")
	receipt, err := Create(cfg, f.pkgPath)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if receipt.PackageID == "" || receipt.ManifestHash == "" {
		t.Fatalf("incomplete receipt: %+v", receipt)
	}
	return f
}

// rewriteArchive copies the package entry by entry, applying mutate to
// each entry's bytes and appending extra entries, to simulate tampering
// after signing.
func rewriteArchive(t *testing.T, path string, mutate func(name string, data []byte) []byte, extra map[string][]byte) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive for rewrite: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open %s: %v", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", zf.Name, err)
		}
		if mutate != nil {
			data = mutate(zf.Name, data)
		}
		ew, err := zw.Create(zf.Name)
		if err != nil {
			t.Fatalf("rewrite %s: %v", zf.Name, err)
		}
		ew.Write(data)
	}
	for name, data := range extra {
		ew, err := zw.Create(name)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		ew.Write(data)
	}
	zr.Close()
	if err := zw.Close(); err != nil {
		t.Fatalf("close rewritten archive: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("replace archive: %v", err)
	}
}

func TestCreateVerifyDecryptRoundTrip(t *testing.T) {
	f := buildPackage(t, nil)

	res, err := Verify(f.pkgPath)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.OK || !res.Authenticated {
		t.Fatalf("expected authenticated pass, got %+v", res)
	}

	for id, priv := range f.recipPriv {
		outDir := t.TempDir()
		written, err := Decrypt(f.pkgPath, id, priv, outDir)
		if err != nil {
			t.Fatalf("Decrypt for %s failed: %v", id, err)
		}
		if len(written) != 1 {
			t.Fatalf("expected one output file, got %v", written)
		}
		data, err := os.ReadFile(written[0])
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if string(data) != secretContent {
			t.Errorf("recipient %s recovered %q, want %q", id, data, secretContent)
		}
		if filepath.Base(written[0]) != "adapter.bin" {
			t.Errorf("output name = %s, want adapter.bin", filepath.Base(written[0]))
		}
	}
}

func TestUnsignedPackageVerifiesUnauthenticated(t *testing.T) {
	f := buildPackage(t, func(cfg *CreateConfig) { cfg.Signer = nil })

	res, err := Verify(f.pkgPath)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.OK || res.Authenticated {
		t.Fatalf("expected unauthenticated pass, got %+v", res)
	}
	if res.Reason != "OK (unauthenticated)" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestTamperedPayloadFailsVerifyAndDecrypt(t *testing.T) {
	f := buildPackage(t, nil)
	rewriteArchive(t, f.pkgPath, func(name string, data []byte) []byte {
		if name == "payload/p1.enc" {
			data[len(data)/2] ^= 0x01
		}
		return data
	}, nil)

	res, err := Verify(f.pkgPath)
	if !errors.Is(err, ErrInventoryMismatch) {
		t.Errorf("Verify: want ErrInventoryMismatch, got %v", err)
	}
	if res == nil || res.OK {
		t.Errorf("Verify result should fail: %+v", res)
	}

	if _, err := Decrypt(f.pkgPath, "alice", f.recipPriv["alice"], t.TempDir()); !errors.Is(err, ErrCiphertextHashMismatch) {
		t.Errorf("Decrypt: want ErrCiphertextHashMismatch, got %v", err)
	}
}

func TestTamperedManifestFailsSignature(t *testing.T) {
	f := buildPackage(t, nil)
	rewriteArchive(t, f.pkgPath, func(name string, data []byte) []byte {
		if name == "manifest.json" {
			return bytes.Replace(data, []byte("producer-1"), []byte("producer-2"), 1)
		}
		return data
	}, nil)

	if _, err := Verify(f.pkgPath); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("want ErrSignatureInvalid, got %v", err)
	}
}

func TestStrippedSignatureFailsVerify(t *testing.T) {
	f := buildPackage(t, nil)

	// Rebuild the archive without signature.json. The manifest still names
	// a producer key, so the downgrade must be detected.
	zr, err := zip.OpenReader(f.pkgPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, zf := range zr.File {
		if zf.Name == "signature.json" {
			continue
		}
		rc, _ := zf.Open()
		data, _ := io.ReadAll(rc)
		rc.Close()
		ew, _ := zw.Create(zf.Name)
		ew.Write(data)
	}
	zr.Close()
	zw.Close()
	os.WriteFile(f.pkgPath, buf.Bytes(), 0o644)

	if _, err := Verify(f.pkgPath); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("want ErrSignatureInvalid, got %v", err)
	}
}

func TestInjectedEntryFailsVerify(t *testing.T) {
	f := buildPackage(t, nil)
	rewriteArchive(t, f.pkgPath, nil, map[string][]byte{
		"payload/smuggled.enc": []byte("not in the inventory"),
	})

	if _, err := Verify(f.pkgPath); !errors.Is(err, ErrUnregisteredEntry) {
		t.Errorf("want ErrUnregisteredEntry, got %v", err)
	}
}

func TestDecryptWrongKeyAndUnknownRecipient(t *testing.T) {
	f := buildPackage(t, nil)

	if _, err := Decrypt(f.pkgPath, "mallory", f.recipPriv["alice"], t.TempDir()); !errors.Is(err, ErrRecipientNotFound) {
		t.Errorf("want ErrRecipientNotFound, got %v", err)
	}

	// Bob's envelope with Alice's private key: the KEK comes out wrong and
	// the key unwrap integrity check refuses it.
	if _, err := Decrypt(f.pkgPath, "bob", f.recipPriv["alice"], t.TempDir()); !errors.Is(err, crypto.ErrKeyUnwrap) {
		t.Errorf("want ErrKeyUnwrap, got %v", err)
	}
}

func TestPolicyBindingEnforced(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(policyPath, []byte(`{"allow":["inference"]}`), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	f := buildPackage(t, func(cfg *CreateConfig) {
		cfg.Policy = &PolicyInput{Path: policyPath, ID: "pol-1", Version: "3"}
	})

	if _, err := Decrypt(f.pkgPath, "alice", f.recipPriv["alice"], t.TempDir()); err != nil {
		t.Fatalf("Decrypt with intact binding failed: %v", err)
	}

	rewriteArchive(t, f.pkgPath, func(name string, data []byte) []byte {
		if name == "recipients.json" {
			return bytes.Replace(data, []byte(`"policy_binding": "`), []byte(`"policy_binding": "AA`), 2)
		}
		return data
	}, nil)

	if _, err := Decrypt(f.pkgPath, "alice", f.recipPriv["alice"], t.TempDir()); !errors.Is(err, crypto.ErrPolicyBindingMismatch) {
		t.Errorf("want ErrPolicyBindingMismatch, got %v", err)
	}
}

func TestChaChaCipherRoundTrip(t *testing.T) {
	f := buildPackage(t, func(cfg *CreateConfig) {
		cfg.Payloads[0].Cipher = crypto.CipherChaCha20Poly1305
	})

	m, err := Inspect(f.pkgPath)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if got := m.Payloads[0].Cipher; got != "ChaCha20-Poly1305" {
		t.Errorf("manifest cipher = %q", got)
	}

	written, err := Decrypt(f.pkgPath, "bob", f.recipPriv["bob"], t.TempDir())
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	data, _ := os.ReadFile(written[0])
	if string(data) != secretContent {
		t.Errorf("recovered %q", data)
	}
}

func TestMultiplePayloads(t *testing.T) {
	var extraPath string
	f := buildPackage(t, func(cfg *CreateConfig) {
		extraPath = filepath.Join(t.TempDir(), "tokenizer.json")
		if err := os.WriteFile(extraPath, []byte(`{"vocab":{}}`), 0o644); err != nil {
			t.Fatalf("write extra payload: %v", err)
		}
		cfg.Payloads = append(cfg.Payloads, PayloadInput{
			ID: "p2", LogicalType: "tokenizer", Path: extraPath,
		})
	})

	res, err := Verify(f.pkgPath)
	if err != nil || !res.OK {
		t.Fatalf("Verify failed: %v %+v", err, res)
	}

	written, err := Decrypt(f.pkgPath, "alice", f.recipPriv["alice"], t.TempDir())
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected two outputs, got %v", written)
	}
}

func TestCreateConfigValidation(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "p.bin")
	os.WriteFile(payloadPath, []byte("x"), 0o644)
	_, pub, err := crypto.GenerateExchangeKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	cases := []struct {
		name string
		cfg  CreateConfig
	}{
		{"no payloads", CreateConfig{Recipients: []Recipient{{ID: "a", PublicKey: pub}}}},
		{"no recipients", CreateConfig{Payloads: []PayloadInput{{ID: "p", Path: payloadPath}}}},
		{"short recipient key", CreateConfig{
			Payloads:   []PayloadInput{{ID: "p", Path: payloadPath}},
			Recipients: []Recipient{{ID: "a", PublicKey: []byte("short")}},
		}},
		{"duplicate payload id", CreateConfig{
			Payloads: []PayloadInput{
				{ID: "p", Path: payloadPath},
				{ID: "p", Path: payloadPath},
			},
			Recipients: []Recipient{{ID: "a", PublicKey: pub}},
		}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted invalid config", tc.name)
		}
	}

	if _, err := Create(&CreateConfig{}, filepath.Join(dir, "out.pkg")); err == nil {
		t.Error("Create accepted empty config")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.pkg")); !os.IsNotExist(err) {
		t.Error("failed Create left a package file behind")
	}
}

func TestCreateFailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	_, pub, _ := crypto.GenerateExchangeKeypair()
	cfg := &CreateConfig{
		ProducerID: "producer-1",
		Payloads:   []PayloadInput{{ID: "p1", Path: filepath.Join(dir, "does-not-exist")}},
		Recipients: []Recipient{{ID: "a", PublicKey: pub}},
	}
	if _, err := Create(cfg, filepath.Join(dir, "out.pkg")); err == nil {
		t.Fatal("Create should fail for missing payload file")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("leftover file after failed create: %s", e.Name())
	}
}

func TestInspect(t *testing.T) {
	f := buildPackage(t, nil)
	m, err := Inspect(f.pkgPath)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if m.ProducerID != "producer-1" {
		t.Errorf("producer = %q", m.ProducerID)
	}
	if len(m.Payloads) != 1 || m.Payloads[0].PayloadID != "p1" {
		t.Errorf("payloads = %+v", m.Payloads)
	}
	if len(m.FileInventory) == 0 {
		t.Error("inventory empty")
	}
}
