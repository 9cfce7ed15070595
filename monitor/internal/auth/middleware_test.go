package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func do(t *testing.T, h http.Handler, target, header, key string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	h := APIKey("none", "X-API-Key", "secret")(okHandler)
	if code := do(t, h, "/api/v1/latest", "", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "")(okHandler)
	if code := do(t, h, "/api/v1/latest", "", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey(t *testing.T) {
	h := APIKey("apikey", "X-Monitor-Key", "supersecret", "/api/v1/health")(okHandler)

	tests := []struct {
		name   string
		target string
		header string
		key    string
		want   int
	}{
		{"correct header", "/api/v1/latest", "X-Monitor-Key", "supersecret", http.StatusOK},
		{"header case-insensitive", "/api/v1/latest", "x-monitor-key", "supersecret", http.StatusOK},
		{"wrong key", "/api/v1/latest", "X-Monitor-Key", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/latest", "", "", http.StatusUnauthorized},
		{"wrong header name", "/api/v1/latest", "X-API-Key", "supersecret", http.StatusUnauthorized},
		{"query param", "/ws/stream?api_key=supersecret", "", "", http.StatusOK},
		{"wrong query param", "/ws/stream?api_key=nope", "", "", http.StatusUnauthorized},
		{"open path", "/api/v1/health", "", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code := do(t, h, tc.target, tc.header, tc.key); code != tc.want {
				t.Errorf("status: got %d, want %d", code, tc.want)
			}
		})
	}
}

func TestAPIKey_DefaultHeader(t *testing.T) {
	h := APIKey("apikey", "", "k")(okHandler)
	if code := do(t, h, "/x", DefaultHeader, "k"); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}
