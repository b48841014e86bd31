package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/pkg/authn"
	"github.com/keyplane/keyplane/pkg/challenge"
	"github.com/keyplane/keyplane/pkg/clierror"
	"github.com/keyplane/keyplane/pkg/transport"
)

var (
	getToken   string
	getRetries int
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Fetch a protected resource through the challenge handshake",
	Long: `get runs the full authentication handshake against the given URL using a
static bearer token (--token or KEYPLANE_TOKEN) and prints the response
body. Useful for verifying that an endpoint's challenge negotiates
end to end.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVar(&getToken, "token", "", "access token (defaults to KEYPLANE_TOKEN)")
	getCmd.Flags().IntVar(&getRetries, "retries", 4, "max send attempts for transient failures")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	target := args[0]

	token := getToken
	if token == "" {
		token = os.Getenv("KEYPLANE_TOKEN")
	}
	if token == "" {
		return clierror.AuthFailed(target, fmt.Errorf("no token: set --token or KEYPLANE_TOKEN"))
	}

	provider := authn.LegacyTokenCallback(func(_ context.Context, _, _, _ string) (challenge.Scheme, string, error) {
		return challenge.SchemeBearer, token, nil
	})
	retryCfg := transport.DefaultRetryConfig()
	retryCfg.MaxAttempts = getRetries
	client := authn.NewHTTPClient(provider,
		authn.WithBaseTransport(transport.New(transport.WithRetryConfig(retryCfg))))

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
	if err != nil {
		return clierror.InternalError(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return clierror.ConnectionFailed(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return clierror.RetryExhausted(target)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return clierror.InternalError(err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", labelFmt("Status:"), resp.Status)
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
