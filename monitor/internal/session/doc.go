// Package session runs one monitoring session: it seeds a sample window and
// an alert set from history, keeps both current from the live streams, and
// derives connection, freshness and severity state for readers.
//
// A Session is an actor. Run owns the window, the alert set and all derived
// state on a single goroutine; stream readers, history fetches and timers
// post typed events onto its queue and never touch that state directly.
// After every event the session publishes an immutable *View, which any
// goroutine can read with View().
//
// Timers: freshness is recomputed every FreshnessInterval and on every new
// sample, alerts are pruned every PruneInterval, and a single timer tracks
// the earliest pending fresh-marker deadline.
//
// The sample stream is supervised here: when a Reconnect policy is set, a
// failed stream is redialed with backoff while the session runs.
package session
