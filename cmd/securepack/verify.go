package main

import (
	"fmt"

	"github.com/maruel/subcommands"

	"github.com/fleetml/securepack/pkg/securepack"
)

var cmdVerify = &subcommands.Command{
	UsageLine: "verify <package>",
	ShortDesc: "Check a package's integrity and signature.",
	LongDesc: `Check every entry hash against the manifest inventory, reject
entries the manifest does not name, and verify the manifest signature.

Prints PASS, PASS (unauthenticated) for a valid unsigned package, or
FAIL with the first violation found.`,
	CommandRun: func() subcommands.CommandRun {
		return &verifyRun{}
	},
}

type verifyRun struct {
	subcommands.CommandRunBase
}

func (c *verifyRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 1 {
		fmt.Fprintln(a.GetErr(), "verify: exactly one package path expected")
		return 1
	}
	res, err := securepack.Verify(args[0])
	if err != nil {
		fmt.Fprintf(a.GetOut(), "FAIL: %s\n", err)
		return 1
	}
	if !res.Authenticated {
		fmt.Fprintln(a.GetOut(), "PASS (unauthenticated)")
		return 0
	}
	fmt.Fprintln(a.GetOut(), "PASS")
	return 0
}
