// Command ikura is the process entrypoint: a spf13/cobra CLI wiring
// config loading, the persisted database, the markov trainer, every
// configured backend driver, the message bus/dispatcher/manager, the
// emote cache updater, and the administrative console together,
// grounded on the teacher's own cobra subcommand shape in
// _examples/zilin-picoclaw/cmd/picoclaw/internal/gateway/command.go
// (one NewXCommand() *cobra.Command per verb, flags bound with
// cmd.Flags().*Var, RunE delegating to a plain function).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// buildVersion is overridden at release-build time via
// -ldflags "-X main.buildVersion=...". "dev" matches every other
// pack example's unset-ldflags default.
var buildVersion = "dev"

func main() {
	root := &cobra.Command{
		Use:   "ikura",
		Short: "A multi-protocol chat bot with an embedded scripting language",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("ikura " + buildVersion)
			return nil
		},
	}
}
