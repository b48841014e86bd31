// Package cmd implements the keyplanectl CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/internal/version"
	"github.com/keyplane/keyplane/pkg/clierror"
)

var (
	// Global flags
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "keyplanectl",
	Short: "Diagnostics for challenge-authenticated data-plane endpoints",
	Long: `keyplanectl exercises the keyplane authentication stack against real
endpoints: probe an endpoint for its WWW-Authenticate challenge, fetch a
protected resource through the full handshake, or generate RSA JSON Web
Keys for proof-of-possession experiments.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")
}

// Execute runs the root command and maps structured errors to exit codes.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *clierror.CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(os.Stderr, clierror.FormatError(cliErr, outputFormat))
			return cliErr.ExitCode
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return clierror.ExitGeneral
	}
	return clierror.ExitSuccess
}
