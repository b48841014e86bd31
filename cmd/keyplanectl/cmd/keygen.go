package cmd

import (
	"fmt"

	gojose "github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/keyplane/keyplane/pkg/clierror"
	"github.com/keyplane/keyplane/pkg/jose"
	"github.com/keyplane/keyplane/pkg/store"
)

var (
	keygenBits    int
	keygenPrivate bool
	keygenSave    bool
	keygenStore   string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key and print it as a JSON Web Key",
	Long: `keygen generates a fresh RSA key of the requested size and prints its
JWK serialization. By default only the public fields are printed; pass
--private to include the CRT fields.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 2048, "RSA key size in bits")
	keygenCmd.Flags().BoolVar(&keygenPrivate, "private", false, "include private key fields")
	keygenCmd.Flags().BoolVar(&keygenSave, "save", false, "persist the private key in the local key store")
	keygenCmd.Flags().StringVar(&keygenStore, "store", store.DefaultPath(), "key store path")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	key, err := jose.GenerateRsaKey(keygenBits)
	if err != nil {
		return clierror.KeyGeneration(err)
	}
	jwk, err := key.ToJWK(keygenPrivate)
	if err != nil {
		return clierror.KeyGeneration(err)
	}
	data, err := jwk.Marshal()
	if err != nil {
		return clierror.KeyGeneration(err)
	}

	// Cross-check the serialization against an independent JOSE
	// implementation before handing it to the user.
	var check gojose.JSONWebKey
	if err := check.UnmarshalJSON(data); err != nil {
		return clierror.InternalError(fmt.Errorf("generated JWK rejected by go-jose: %w", err))
	}
	if !check.Valid() {
		return clierror.InternalError(fmt.Errorf("generated JWK failed go-jose validation"))
	}

	if keygenSave {
		s, err := store.Open(keygenStore)
		if err != nil {
			return clierror.InternalError(err)
		}
		defer s.Close()
		if err := s.Save(key); err != nil {
			return clierror.InternalError(err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved key %s to %s\n", key.Kid(), keygenStore)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
