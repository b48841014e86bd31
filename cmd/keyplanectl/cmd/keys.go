package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/pkg/clierror"
	"github.com/keyplane/keyplane/pkg/store"
)

var keysStore string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage keys persisted by keygen --save",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysShowCmd = &cobra.Command{
	Use:   "show <kid>",
	Short: "Print a stored key as a public JWK",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysShow,
}

var keysRmCmd = &cobra.Command{
	Use:   "rm <kid>",
	Short: "Delete a stored key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRm,
}

func init() {
	keysCmd.PersistentFlags().StringVar(&keysStore, "store", store.DefaultPath(), "key store path")
	keysCmd.AddCommand(keysListCmd, keysShowCmd, keysRmCmd)
	rootCmd.AddCommand(keysCmd)
}

func openKeyStore() (*store.KeyStore, error) {
	s, err := store.Open(keysStore)
	if err != nil {
		return nil, clierror.InternalError(err)
	}
	return s, nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	s, err := openKeyStore()
	if err != nil {
		return err
	}
	defer s.Close()

	keys, err := s.List()
	if err != nil {
		return clierror.InternalError(err)
	}

	if outputFormat == "json" {
		type entry struct {
			Kid       string `json:"kid"`
			Bits      int    `json:"bits"`
			CreatedAt string `json:"created_at"`
		}
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, entry{Kid: k.Kid, Bits: k.Bits, CreatedAt: k.CreatedAt.Format("2006-01-02T15:04:05Z07:00")})
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return clierror.InternalError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "no stored keys")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintf(out, "%s %s  %d bits  %s\n",
			labelFmt("kid:"), k.Kid, k.Bits, k.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	s, err := openKeyStore()
	if err != nil {
		return err
	}
	defer s.Close()

	key, err := s.Get(args[0])
	if err != nil {
		return clierror.InternalError(err)
	}
	jwk, err := key.ToJWK(false)
	if err != nil {
		return clierror.InternalError(err)
	}
	data, err := jwk.Marshal()
	if err != nil {
		return clierror.InternalError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runKeysRm(cmd *cobra.Command, args []string) error {
	s, err := openKeyStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(args[0]); err != nil {
		return clierror.InternalError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
