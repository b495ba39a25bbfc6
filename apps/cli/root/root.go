package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the identity CLI. Subcommands (auth,
// tenant, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "xid",
	Short:         "xReason identity CLI",
	Long:          "Command-line client for the identity service (login, session inspection, tenant management, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
