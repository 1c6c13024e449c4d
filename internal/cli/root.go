// Package cli implements matctl, the operator command line for the code
// registry.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	Format      string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "matctl",
		Short: "Operator tooling for the mat tracker code registry",
		Long: `matctl runs registry maintenance against the database directly:
schema migrations, seller setup, code generation, shipment approvals and
long-test reports. Allocation goes through the same per-seller lock as the
server when REDIS_ADDR is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.DatabaseURL == "" {
				return NewExitError(ExitCommandError, "--database-url is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", config.Load().DatabaseURL, "postgres DSN or sqlite:<path>")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSellerCommand(opts))
	cmd.AddCommand(NewCodesCommand(opts))
	cmd.AddCommand(NewRequestsCommand(opts))
	cmd.AddCommand(NewCyclesCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
