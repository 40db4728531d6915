// Command securepack creates, inspects, verifies and decrypts secure
// model packages from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/maruel/subcommands"
)

var application = &subcommands.DefaultApplication{
	Name:  "securepack",
	Title: "Secure model package tool.",
	Commands: []*subcommands.Command{
		subcommands.CmdHelp,

		cmdKeygen,
		cmdCreate,
		cmdVerify,
		cmdDecrypt,
		cmdInspect,
	},
}

// repeatedFlag collects a flag given multiple times.
type repeatedFlag []string

func (f *repeatedFlag) String() string { return fmt.Sprintf("%v", []string(*f)) }

func (f *repeatedFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	os.Exit(subcommands.Run(application, nil))
}
