package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/pkg/challenge"
	"github.com/keyplane/keyplane/pkg/clierror"
)

var (
	labelFmt  = color.New(color.FgCyan).SprintFunc()
	schemeFmt = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnFmt   = color.New(color.FgYellow).SprintFunc()
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Probe an endpoint and print its authentication challenge",
	Long: `probe sends an unauthenticated request to the given URL and parses the
WWW-Authenticate challenge from the 401 response, the same discovery step
the authentication handler performs on a cache miss.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	target := args[0]

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
	if err != nil {
		return clierror.InternalError(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return clierror.ConnectionFailed(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return clierror.NoChallenge(target, resp.StatusCode)
	}

	header := resp.Header.Get("WWW-Authenticate")
	ch, err := challenge.Parse(header)
	if err != nil {
		return clierror.ChallengeMalformed(target, err)
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(ch, "", "  ")
		if err != nil {
			return clierror.InternalError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", labelFmt("Scheme:"), schemeFmt(ch.Scheme))
	fmt.Fprintf(out, "%s %s\n", labelFmt("Authorization server:"), ch.AuthorizationServer)
	if ch.Resource != "" {
		fmt.Fprintf(out, "%s %s\n", labelFmt("Resource:"), ch.Resource)
	}
	if ch.Scope != "" {
		fmt.Fprintf(out, "%s %s\n", labelFmt("Scope:"), ch.Scope)
	}
	switch {
	case ch.SupportsPoP():
		fmt.Fprintf(out, "%s encryption kid=%s, signature kid=%s\n",
			labelFmt("Server keys:"), ch.ServerEncryptionKey.Kid, ch.ServerSignatureKey.Kid)
	case ch.Scheme == challenge.SchemePoP:
		fmt.Fprintln(out, warnFmt("PoP challenge is missing server keys; message security cannot be built"))
	}
	return nil
}
