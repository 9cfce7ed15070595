package stream

import (
	"context"
	"fmt"
	"net/url"
)

// Event names used by the upstream.
const (
	EventMessage = "message"
	EventAlert   = "alert"
)

// Event is one message received on a push stream.
type Event struct {
	Name string
	Data []byte
}

// Conn is an open push-stream connection. Next and Close may be called from
// different goroutines; Close unblocks a pending Next.
type Conn interface {
	Next() (Event, error)
	Close() error
}

// Dialer opens push-stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// websocketURL rewrites an http(s) URL to the matching ws(s) scheme.
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
