package main

import (
	"fmt"

	"github.com/maruel/subcommands"

	"github.com/fleetml/securepack/pkg/securepack"
)

var cmdInspect = &subcommands.Command{
	UsageLine: "inspect <package>",
	ShortDesc: "Print a package's manifest.",
	LongDesc: `Print the manifest as JSON without verifying hashes or the
signature. Run verify before trusting the output.`,
	CommandRun: func() subcommands.CommandRun {
		return &inspectRun{}
	},
}

type inspectRun struct {
	subcommands.CommandRunBase
}

func (c *inspectRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 1 {
		fmt.Fprintln(a.GetErr(), "inspect: exactly one package path expected")
		return 1
	}
	m, err := securepack.Inspect(args[0])
	if err != nil {
		fmt.Fprintf(a.GetErr(), "inspect: %s\n", err)
		return 1
	}
	out, err := m.ToJSON()
	if err != nil {
		fmt.Fprintf(a.GetErr(), "inspect: %s\n", err)
		return 1
	}
	fmt.Fprintln(a.GetOut(), string(out))
	return 0
}
