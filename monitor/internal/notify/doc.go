// Package notify delivers newly seen alerts to chat and HTTP webhooks.
//
// A Notifier is registered as an ordinary listener on the shared alert
// feed. It keeps its own deduplicated alert set so that a redelivered
// alert is announced once, and drops alerts below the configured level.
package notify
