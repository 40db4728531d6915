package main

import (
	"fmt"

	"github.com/maruel/subcommands"

	"github.com/fleetml/securepack/pkg/crypto"
)

var cmdKeygen = &subcommands.Command{
	UsageLine: "keygen -type ed25519|x25519 -name <prefix>",
	ShortDesc: "Generate a keypair.",
	LongDesc: `Generate a keypair and write it to <prefix>.priv and <prefix>.pub.

ed25519 keys sign packages; x25519 keys receive them.`,
	CommandRun: func() subcommands.CommandRun {
		c := &keygenRun{}
		c.Flags.StringVar(&c.keyType, "type", "ed25519", "key type: ed25519 or x25519")
		c.Flags.StringVar(&c.name, "name", "", "output file prefix")
		return c
	},
}

type keygenRun struct {
	subcommands.CommandRunBase
	keyType string
	name    string
}

func (c *keygenRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a); err != nil {
		fmt.Fprintf(a.GetErr(), "keygen: %s\n", err)
		return 1
	}
	return 0
}

func (c *keygenRun) innerRun(a subcommands.Application) error {
	if c.name == "" {
		return fmt.Errorf("-name is required")
	}

	var priv, pub []byte
	switch c.keyType {
	case "ed25519":
		sk, pk, err := crypto.GenerateSigningKeypair()
		if err != nil {
			return err
		}
		priv, pub = sk.Seed(), pk
	case "x25519":
		sk, pk, err := crypto.GenerateExchangeKeypair()
		if err != nil {
			return err
		}
		priv, pub = sk, pk
	default:
		return fmt.Errorf("unknown key type %q", c.keyType)
	}
	defer crypto.Zeroize(priv)

	if err := crypto.SaveKey(c.name+".priv", priv); err != nil {
		return err
	}
	if err := crypto.SaveKey(c.name+".pub", pub); err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "wrote %s.priv and %s.pub\n", c.name, c.name)
	return nil
}
