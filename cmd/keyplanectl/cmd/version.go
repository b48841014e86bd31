package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/internal/version"
	"github.com/keyplane/keyplane/internal/versioncheck"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return newVersionCmdWithChecker(nil)
}

// newVersionCmdWithChecker lets tests inject a checker against a mock
// release feed. A nil checker is resolved lazily so plain "version" never
// touches the network.
func newVersionCmdWithChecker(checker *versioncheck.Checker) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the keyplanectl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "keyplanectl version %s\n", version.String())
			if !check {
				return nil
			}

			c := checker
			if c == nil {
				c = versioncheck.NewChecker()
			}
			result := c.Check(version.Version)
			if result.LatestVersion == "" {
				fmt.Fprintln(out, warnFmt("Could not determine the latest release"))
				if result.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "check failed: %v\n", result.Err)
				}
				return nil
			}
			if !result.UpdateAvailable {
				fmt.Fprintln(out, "You are running the latest version")
				return nil
			}
			fmt.Fprintf(out, "A newer version is available: %s\n", schemeFmt(result.LatestVersion))
			if result.ReleaseURL != "" {
				fmt.Fprintf(out, "Release notes: %s\n", result.ReleaseURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check for a newer release")
	return cmd
}
