package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/obsidianstack/spacewatch/monitor/internal/config"
)

// NewHTTPClient returns an http.Client that authenticates to the upstream
// per u.Auth. A zero timeout leaves requests unbounded, which push streams
// require.
func NewHTTPClient(u config.Upstream, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := TLSConfig(u)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsCfg,
			},
			auth: u.Auth,
		},
		Timeout: timeout,
	}, nil
}

// TLSConfig builds the client TLS configuration, loading the client
// certificate and CA bundle in mtls mode.
func TLSConfig(u config.Upstream) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: u.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if u.Auth.Mode != "mtls" {
		return tlsCfg, nil
	}

	cert, err := tls.LoadX509KeyPair(u.Auth.CertFile, u.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg.Certificates = []tls.Certificate{cert}

	if u.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(u.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", u.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// Header returns the credentials for a as request headers.
func Header(a config.AuthConfig) http.Header {
	h := http.Header{}
	req := &http.Request{Header: h}
	applyAuth(req, a)
	return h
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey", "bearer", "basic":
		req = req.Clone(req.Context())
		applyAuth(req, t.auth)
	}
	return t.base.RoundTrip(req)
}

func applyAuth(req *http.Request, a config.AuthConfig) {
	switch a.Mode {
	case "apikey":
		req.Header.Set(a.Header, a.Key())
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token())
	case "basic":
		req.SetBasicAuth(a.Username, a.Password())
	}
}
