package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/keyplane/keyplane/internal/testutil/cli"
	"github.com/keyplane/keyplane/pkg/store"
)

func TestKeygen_PublicByDefault(t *testing.T) {
	// Shared command state: pass every flag explicitly.
	result := cli.Run(keygenCmd, "--bits=2048", "--private=false", "--save=false")
	result.AssertSuccess(t)

	var jwk map[string]any
	if err := json.Unmarshal([]byte(result.Stdout), &jwk); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, result.Stdout)
	}
	if jwk["kty"] != "RSA" {
		t.Fatalf("kty = %v", jwk["kty"])
	}
	if jwk["n"] == "" || jwk["e"] == "" || jwk["kid"] == "" {
		t.Fatalf("missing public fields: %v", jwk)
	}
	if _, ok := jwk["d"]; ok {
		t.Fatal("private field leaked into public output")
	}
}

func TestKeygen_Private(t *testing.T) {
	result := cli.Run(keygenCmd, "--bits=2048", "--private=true", "--save=false")
	result.AssertSuccess(t)

	var jwk map[string]any
	if err := json.Unmarshal([]byte(result.Stdout), &jwk); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	for _, field := range []string{"d", "p", "q", "dp", "dq", "qi"} {
		if _, ok := jwk[field]; !ok {
			t.Errorf("missing private field %q", field)
		}
	}
}

func TestKeygen_RejectsSmallKeys(t *testing.T) {
	result := cli.Run(keygenCmd, "--bits=1024", "--private=false", "--save=false")
	result.AssertError(t)
}

func TestKeygen_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")

	result := cli.Run(keygenCmd, "--bits=2048", "--private=false", "--save=true", "--store="+path)
	result.AssertSuccess(t)

	var jwk struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &jwk); err != nil {
		t.Fatal(err)
	}

	s, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	key, err := s.Get(jwk.Kid)
	if err != nil {
		t.Fatalf("saved key not found: %v", err)
	}
	if !key.IsPrivate() {
		t.Fatal("stored key is not private")
	}
}
