package types

import "errors"

// ErrMalformed marks a stream or history payload that could not be turned
// into a Sample or Alert. Malformed records are dropped, never committed.
var ErrMalformed = errors.New("malformed message")

// FetchError reports a failed historical load. The caller seeds empty.
type FetchError struct {
	Resource string // "samples" | "alerts" | "config"
	Err      error
}

func (e *FetchError) Error() string { return "fetch " + e.Resource + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// TransportError reports a push-stream failure. The stream is marked
// DISCONNECTED; it is never fatal to a session.
type TransportError struct {
	Stream string // "samples" | "alerts"
	Err    error
}

func (e *TransportError) Error() string { return "stream " + e.Stream + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
