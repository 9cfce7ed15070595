// Package telemetry defines the Prometheus collectors exported on /metrics.
//
// New(reg) registers every collector on reg and returns a Metrics value that
// the rest of the monitor records into. Discard() returns a Metrics bound to
// a private registry for callers (mostly tests) that do not export metrics.
// Handler(g) serves the text exposition for a Gatherer.
package telemetry
