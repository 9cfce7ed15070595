// Package streamtest provides an in-memory stream.Dialer for tests.
package streamtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("streamtest: connection closed")

// waitTimeout bounds every blocking helper.
const waitTimeout = 2 * time.Second

// Conn is a scripted stream.Conn. Events are handed to the reader one at a
// time; Send returns once the reader has taken the event.
type Conn struct {
	URL string

	events chan stream.Event
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

// NewConn returns an open Conn.
func NewConn(url string) *Conn {
	return &Conn{
		URL:    url,
		events: make(chan stream.Event),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Next implements stream.Conn.
func (c *Conn) Next() (stream.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return stream.Event{}, err
	case <-c.closed:
		return stream.Event{}, ErrClosed
	}
}

// Close implements stream.Conn.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Send delivers one event to the reader. It fails the test if nobody reads
// within the timeout or the connection is closed first.
func (c *Conn) Send(t testing.TB, name, data string) {
	t.Helper()
	select {
	case c.events <- stream.Event{Name: name, Data: []byte(data)}:
	case <-c.closed:
		t.Fatalf("streamtest: send %q on closed connection", name)
	case <-time.After(waitTimeout):
		t.Fatalf("streamtest: send %q: no reader", name)
	}
}

// Fail makes the pending or next Next return err.
func (c *Conn) Fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WaitClosed fails the test if the connection is not closed in time.
func (c *Conn) WaitClosed(t testing.TB) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(waitTimeout):
		t.Fatal("streamtest: connection not closed")
	}
}

// Dialer hands out a new Conn per Dial call and records them.
type Dialer struct {
	mu    sync.Mutex
	err   error
	conns []*Conn
	dials chan *Conn
}

// NewDialer returns a Dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{dials: make(chan *Conn, 64)}
}

// SetErr makes subsequent dials fail with err. nil restores success.
func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Dial implements stream.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		d.notify(nil)
		return nil, err
	}
	c := NewConn(url)
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	d.notify(c)
	return c, nil
}

func (d *Dialer) notify(c *Conn) {
	select {
	case d.dials <- c:
	default:
	}
}

// Dials returns the number of successful dials so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// WaitDial blocks until the next Dial call and returns its Conn, which is
// nil for a failed dial.
func (d *Dialer) WaitDial(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-d.dials:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("streamtest: no dial")
		return nil
	}
}

// AssertNoDial fails the test if Dial is called within d.
func (d *Dialer) AssertNoDial(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case <-d.dials:
		t.Fatal("streamtest: unexpected dial")
	case <-time.After(wait):
	}
}
