package main

import (
	"fmt"

	"github.com/maruel/subcommands"

	"github.com/fleetml/securepack/pkg/crypto"
	"github.com/fleetml/securepack/pkg/securepack"
)

var cmdDecrypt = &subcommands.Command{
	UsageLine: "decrypt <package> -recipient-id <id> -key <privfile> -outdir <dir>",
	ShortDesc: "Decrypt a package's payloads.",
	LongDesc: `Decrypt every payload for the named recipient into -outdir.

The key file holds the recipient's raw 32-byte X25519 private key as
written by keygen.`,
	CommandRun: func() subcommands.CommandRun {
		c := &decryptRun{}
		c.Flags.StringVar(&c.recipientID, "recipient-id", "", "recipient identifier")
		c.Flags.StringVar(&c.keyFile, "key", "", "recipient private key file")
		c.Flags.StringVar(&c.outDir, "outdir", ".", "output directory")
		return c
	},
}

type decryptRun struct {
	subcommands.CommandRunBase
	recipientID string
	keyFile     string
	outDir      string
}

func (c *decryptRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a, args); err != nil {
		fmt.Fprintf(a.GetErr(), "decrypt: %s\n", err)
		return 1
	}
	return 0
}

func (c *decryptRun) innerRun(a subcommands.Application, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one package path expected")
	}
	if c.recipientID == "" || c.keyFile == "" {
		return fmt.Errorf("-recipient-id and -key are required")
	}

	priv, err := crypto.LoadRawKey(c.keyFile)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(priv)

	written, err := securepack.Decrypt(args[0], c.recipientID, priv, c.outDir)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintln(a.GetOut(), path)
	}
	return nil
}
