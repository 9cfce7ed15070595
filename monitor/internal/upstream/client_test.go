package upstream

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/obsidianstack/spacewatch/monitor/internal/config"
)

// captureServer records the headers of the last request it receives.
func captureServer(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewHTTPClient_AuthModes(t *testing.T) {
	t.Setenv("UP_KEY", "k-123")
	t.Setenv("UP_TOKEN", "tok")
	t.Setenv("UP_PASS", "pw")

	tests := []struct {
		name   string
		auth   config.AuthConfig
		header string
		want   string
	}{
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-API-Key", KeyEnv: "UP_KEY"}, "X-API-Key", "k-123"},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "UP_TOKEN"}, "Authorization", "Bearer tok"},
		{"basic", config.AuthConfig{Mode: "basic", Username: "ops", PasswordEnv: "UP_PASS"}, "Authorization", "Basic b3BzOnB3"},
		{"none", config.AuthConfig{Mode: "none"}, "Authorization", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := captureServer(t)
			client, err := NewHTTPClient(config.Upstream{Auth: tc.auth}, 0)
			if err != nil {
				t.Fatalf("NewHTTPClient: %v", err)
			}
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if v := got.Get(tc.header); v != tc.want {
				t.Errorf("%s header: got %q, want %q", tc.header, v, tc.want)
			}
		})
	}
}

func TestNewHTTPClient_DoesNotMutateCallerRequest(t *testing.T) {
	t.Setenv("UP_TOKEN", "tok")
	srv, _ := captureServer(t)
	client, err := NewHTTPClient(config.Upstream{Auth: config.AuthConfig{Mode: "bearer", TokenEnv: "UP_TOKEN"}}, 0)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if req.Header.Get("Authorization") != "" {
		t.Error("RoundTrip modified the caller's request")
	}
}

func TestHeader(t *testing.T) {
	t.Setenv("UP_KEY", "k-123")
	h := Header(config.AuthConfig{Mode: "apikey", Header: "X-Upstream-Key", KeyEnv: "UP_KEY"})
	if h.Get("X-Upstream-Key") != "k-123" {
		t.Errorf("Header: got %v", h)
	}
	if len(Header(config.AuthConfig{Mode: "none"})) != 0 {
		t.Error("Header(none): expected no headers")
	}
}

func TestTLSConfig_MissingClientCert(t *testing.T) {
	dir := t.TempDir()
	_, err := TLSConfig(config.Upstream{Auth: config.AuthConfig{
		Mode:     "mtls",
		CertFile: filepath.Join(dir, "client.crt"),
		KeyFile:  filepath.Join(dir, "client.key"),
	}})
	if err == nil {
		t.Fatal("expected error for missing client certificate")
	}
}

func TestTLSConfig_InsecureSkipVerify(t *testing.T) {
	cfg, err := TLSConfig(config.Upstream{TLS: config.TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("TLSConfig: %v", err)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify not propagated")
	}
}
