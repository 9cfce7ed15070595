// Package history fetches the historical snapshots that seed a session:
// the most recent samples (GET <base>/data?limit=N) and alerts
// (GET <base>/alerts?limit=N). Failures are returned as *types.FetchError;
// callers treat them as an empty seed. Individual malformed records are
// skipped and counted.
//
// ResolveBaseURL implements the runtime config lookup: it reads apiBaseUrl
// from a config.json document and falls back to /api/ on the same origin.
package history
