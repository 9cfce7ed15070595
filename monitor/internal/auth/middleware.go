package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// DefaultHeader carries the key when no header is configured.
const DefaultHeader = "X-API-Key"

// QueryParam carries the key for clients that cannot set headers, such as
// browser WebSocket connections.
const QueryParam = "api_key"

// APIKey returns middleware that enforces API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or key == "", every request passes through.
//   - Otherwise the key is read from header, falling back to the api_key
//     query parameter, and compared to key in constant time.
//   - Paths listed in open always pass (liveness probes).
//   - A missing or incorrect key returns 401 with a JSON error body.
func APIKey(mode, header, key string, open ...string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	exempt := make(map[string]bool, len(open))
	for _, p := range open {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				slog.Debug("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
