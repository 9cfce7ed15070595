// Package upstream builds the HTTP plumbing shared by every connection to
// the space-weather API: TLS settings, client certificates, and an auth
// RoundTripper that injects apikey, bearer or basic credentials into each
// request. History fetches and SSE streams use NewHTTPClient; the WebSocket
// transport uses TLSConfig and Header for its handshake.
package upstream
