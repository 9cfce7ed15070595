// Package config loads and watches the monitor configuration file.
//
// Load(path) applies defaults (500-sample window, 300-sample seed, 50 alerts
// kept for 5m, 10s fresh markers, 10s freshness recompute, port 8080), then
// the YAML file, then SPACEWATCH_* environment overrides, and validates the
// result. Secrets are never stored in the file: auth blocks name the
// environment variables that hold them.
//
// Watch(ctx, path, onChange) uses fsnotify to detect edits. The monitor
// applies severity thresholds and the log level from a reloaded config;
// other fields take effect on restart.
package config
