// Package auth protects the monitor's HTTP surface with an optional API key.
package auth
