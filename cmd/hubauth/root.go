package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the hubauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hubauth",
		Short: "hubauth - identity and session service for PrimeHub",
		Long: `hubauth verifies logins from the Telegram Login Widget, X OAuth2,
and email+password, resolves them to PrimeHub accounts, and manages
the sessions and password resets behind the /auth endpoints.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
