package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree around rt
func NewRootCmd(rt *commands.Runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gresst",
		Short: "Gresst - sign in to the Gresst API from the terminal",
		Long: `Gresst CLI - manage your Gresst session.

Authenticates with a bearer token kept in the OS keyring, or with the server's
cookie session when useCredentials is enabled. Expired sessions are refreshed
transparently once per request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gresst version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewLoginCmd(rt))
	rootCmd.AddCommand(commands.NewLogoutCmd(rt))
	rootCmd.AddCommand(commands.NewStatusCmd(rt))
	rootCmd.AddCommand(commands.NewProfileCmd(rt))
	rootCmd.AddCommand(commands.NewChangePasswordCmd(rt))
	rootCmd.AddCommand(commands.NewRequestCmd(rt))
	rootCmd.AddCommand(commands.NewDebugLogCmd(rt))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd(commands.DefaultRuntime()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
