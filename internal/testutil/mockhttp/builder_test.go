package mockhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestRequireChallenge(t *testing.T) {
	const header = `Bearer authorization="https://login.test", resource="https://vault.test"`

	builder := New()
	captured := builder.Capture()
	builder.RequireChallenge(header).
		JSON("/secrets/foo", map[string]string{"value": "bar"})
	server, client := builder.Build()
	defer server.Close()

	// Anonymous request gets challenged.
	resp, err := client.Get(server.URL + "/secrets/foo")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != header {
		t.Fatalf("WWW-Authenticate = %q", got)
	}

	// Authorized request falls through to the route.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/secrets/foo", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["value"] != "bar" {
		t.Fatalf("payload = %v", payload)
	}

	if captured.Count() != 2 {
		t.Fatalf("captured %d requests, want 2", captured.Count())
	}
	if got := captured.Last().Headers.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("captured Authorization = %q", got)
	}
}

func TestAlwaysChallenge(t *testing.T) {
	const header = `PoP authorization="https://login.test"`

	server, client := New().AlwaysChallenge(header).Build()
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/anything", nil)
	req.Header.Set("Authorization", "PoP tok")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 even when authorized", resp.StatusCode)
	}
}

func TestPathMatching(t *testing.T) {
	server, client := New().
		Status("/exact", http.StatusNoContent).
		Status("/prefix/*", http.StatusAccepted).
		DefaultStatus(http.StatusTeapot).
		Build()
	defer server.Close()

	cases := []struct {
		path string
		want int
	}{
		{"/exact", http.StatusNoContent},
		{"/exact/extra", http.StatusTeapot},
		{"/prefix/a", http.StatusAccepted},
		{"/prefix/a/b", http.StatusAccepted},
		{"/other", http.StatusTeapot},
	}
	for _, tc := range cases {
		resp, err := client.Get(server.URL + tc.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestCaptureRestoresBody(t *testing.T) {
	builder := New()
	captured := builder.Capture()
	builder.RouteFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	server, client := builder.Build()
	defer server.Close()

	resp, err := client.Post(server.URL+"/echo", "text/plain", strings.NewReader("ping"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	echoed, _ := io.ReadAll(resp.Body)

	// Capture reads the body but the downstream handler still sees it.
	if string(echoed) != "ping" {
		t.Fatalf("echo = %q", echoed)
	}
	if got := captured.Last(); got == nil || string(got.Body) != "ping" {
		t.Fatalf("captured body = %+v", got)
	}
}

func TestTLS(t *testing.T) {
	server, client := New().Status("/", http.StatusOK).TLS().Build()
	defer server.Close()

	if !strings.HasPrefix(server.URL, "https://") {
		t.Fatalf("URL = %q, want https", server.URL)
	}
	resp, err := client.Get(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
