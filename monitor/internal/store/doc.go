// Package store holds the two bounded in-memory collections a monitoring
// session owns: the sample Window and the deduplicated AlertSet.
//
// Neither type is safe for concurrent use. Each instance belongs to exactly
// one session goroutine, which serialises every mutation; see package
// session. Time-dependent operations take an explicit now so callers and
// tests control the clock.
package store
