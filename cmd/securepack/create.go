package main

import (
	"fmt"
	"strings"

	"github.com/maruel/subcommands"

	"github.com/fleetml/securepack/pkg/crypto"
	"github.com/fleetml/securepack/pkg/securepack"
)

var cmdCreate = &subcommands.Command{
	UsageLine: "create -out <path> -payload id:type:file -recipient id:pubkeyfile [options]",
	ShortDesc: "Build a package.",
	LongDesc: `Build a package from one or more payload files.

Each -payload takes id:logical_type:file and each -recipient takes
id:pubkeyfile, where pubkeyfile holds a raw 32-byte X25519 public key.
With -signing-key the manifest is signed; without it the package
verifies as unauthenticated.`,
	CommandRun: func() subcommands.CommandRun {
		c := &createRun{}
		c.Flags.StringVar(&c.out, "out", "", "output package path")
		c.Flags.StringVar(&c.producer, "producer", "", "producer identifier recorded in the manifest")
		c.Flags.StringVar(&c.signingKey, "signing-key", "", "Ed25519 private key file for signing")
		c.Flags.StringVar(&c.keyID, "key-id", "producer", "key id recorded in the signature block")
		c.Flags.StringVar(&c.cipher, "cipher", "", "payload cipher: AES-256-GCM (default) or ChaCha20-Poly1305")
		c.Flags.StringVar(&c.policy, "policy", "", "policy file to embed")
		c.Flags.StringVar(&c.policyID, "policy-id", "", "policy identifier")
		c.Flags.StringVar(&c.policyVersion, "policy-version", "", "policy version")
		c.Flags.Var(&c.payloads, "payload", "payload as id:type:file (repeatable)")
		c.Flags.Var(&c.recipients, "recipient", "recipient as id:pubkeyfile (repeatable)")
		c.Flags.Var(&c.evidence, "evidence", "evidence file to attach (repeatable)")
		c.Flags.Var(&c.baseModels, "base-model", "base model identifier (repeatable)")
		return c
	},
}

type createRun struct {
	subcommands.CommandRunBase
	out           string
	producer      string
	signingKey    string
	keyID         string
	cipher        string
	policy        string
	policyID      string
	policyVersion string
	payloads      repeatedFlag
	recipients    repeatedFlag
	evidence      repeatedFlag
	baseModels    repeatedFlag
}

func (c *createRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a); err != nil {
		fmt.Fprintf(a.GetErr(), "create: %s\n", err)
		return 1
	}
	return 0
}

func (c *createRun) innerRun(a subcommands.Application) error {
	if c.out == "" {
		return fmt.Errorf("-out is required")
	}
	cipher, err := crypto.ParseCipher(c.cipher)
	if err != nil {
		return err
	}

	cfg := &securepack.CreateConfig{
		ProducerID:    c.producer,
		EvidencePaths: c.evidence,
		BaseModelIDs:  c.baseModels,
	}

	for _, spec := range c.payloads {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("bad -payload %q, want id:type:file", spec)
		}
		cfg.Payloads = append(cfg.Payloads, securepack.PayloadInput{
			ID:          parts[0],
			LogicalType: parts[1],
			Path:        parts[2],
			Cipher:      cipher,
		})
	}

	for _, spec := range c.recipients {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad -recipient %q, want id:pubkeyfile", spec)
		}
		pub, err := crypto.LoadRawKey(parts[1])
		if err != nil {
			return fmt.Errorf("recipient %s: %w", parts[0], err)
		}
		cfg.Recipients = append(cfg.Recipients, securepack.Recipient{ID: parts[0], PublicKey: pub})
	}

	if c.signingKey != "" {
		signer, err := crypto.LoadFileSigner(c.signingKey, c.keyID)
		if err != nil {
			return err
		}
		cfg.Signer = signer
	}

	if c.policy != "" {
		cfg.Policy = &securepack.PolicyInput{
			Path:    c.policy,
			ID:      c.policyID,
			Version: c.policyVersion,
		}
	}

	receipt, err := securepack.Create(cfg, c.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "package %s\nmanifest %s\n", receipt.PackageID, receipt.ManifestHash)
	if receipt.SignerKeyID != "" {
		fmt.Fprintf(a.GetOut(), "signed by %s\n", receipt.SignerKeyID)
	}
	return nil
}
