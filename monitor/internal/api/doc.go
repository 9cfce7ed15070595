// Package api implements the HTTP JSON API of the monitor.
//
// New(source) returns an http.Handler that serves:
//
//	GET /api/v1/health    liveness plus current freshness
//	GET /api/v1/latest    newest sample and its severity bands; 404 while empty
//	GET /api/v1/window    every retained sample, oldest first
//	GET /api/v1/status    stream states, freshness, diagnostics
//	GET /api/v1/alerts    deduplicated alerts, newest first, with fresh flags
//	GET /api/v1/snapshot  all of the above in one document
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Responses are built from the session's published
// View, so handlers never block the session.
package api
