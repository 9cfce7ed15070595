package alertfeed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Listener receives decoded alerts. It runs on the feed goroutine and must
// not block for long.
type Listener func(types.Alert)

// Option configures a Manager.
type Option func(*Manager)

// WithReconnect redials a failed connection while listeners remain, waiting
// between attempts as dictated by a fresh BackOff from newBackOff.
func WithReconnect(newBackOff func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = newBackOff }
}

// WithClock replaces the wall clock used for backoff waits.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics records feed activity into metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager shares one alert stream connection between listeners.
type Manager struct {
	dialer     stream.Dialer
	url        string
	clock      clock.Clock
	newBackOff func() backoff.BackOff
	metrics    *telemetry.Metrics

	mu        sync.Mutex
	listeners []*registration
	active    *feed
	state     types.ConnState
}

type registration struct {
	fn      Listener
	removed atomic.Bool
}

// feed is one connection lifetime, from open until stop or discard.
type feed struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	conn    stream.Conn
	stopped bool
}

// New returns a Manager for the alert stream at url. No connection is made
// until the first Subscribe.
func New(dialer stream.Dialer, url string, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		url:    url,
		clock:  clock.New(),
		state:  types.Disconnected,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = telemetry.Discard()
	}
	return m
}

// Subscribe registers fn and opens the connection if none is open. The
// returned function removes fn; when it removes the last listener the
// connection is closed. Calling it more than once has no further effect.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	reg := &registration{fn: fn}

	m.mu.Lock()
	m.listeners = append(m.listeners, reg)
	if m.active == nil {
		m.active = m.open()
	}
	n := len(m.listeners)
	m.mu.Unlock()

	m.metrics.FeedListeners.Set(float64(n))
	slog.Debug("alertfeed: listener added", "listeners", n)

	var once sync.Once
	return func() { once.Do(func() { m.unsubscribe(reg) }) }
}

// Listeners returns the number of registered listeners.
func (m *Manager) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Open reports whether a connection is currently open or being opened.
func (m *Manager) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// State returns the connection state of the alert stream.
func (m *Manager) State() types.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close removes every listener, closes the connection and waits for the
// feed goroutine to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, r := range m.listeners {
		r.removed.Store(true)
	}
	m.listeners = nil
	f := m.active
	m.active = nil
	m.mu.Unlock()

	m.metrics.FeedListeners.Set(0)
	if f != nil {
		f.stop()
		<-f.done
	}
}

func (m *Manager) unsubscribe(reg *registration) {
	reg.removed.Store(true)

	m.mu.Lock()
	kept := make([]*registration, 0, len(m.listeners))
	for _, r := range m.listeners {
		if r != reg {
			kept = append(kept, r)
		}
	}
	m.listeners = kept
	var f *feed
	if len(kept) == 0 {
		f = m.active
		m.active = nil
	}
	m.mu.Unlock()

	m.metrics.FeedListeners.Set(float64(len(kept)))
	if f != nil {
		slog.Debug("alertfeed: last listener removed, closing stream")
		f.stop()
	}
}

// open starts a feed goroutine. Callers hold m.mu.
func (m *Manager) open() *feed {
	ctx, cancel := context.WithCancel(context.Background())
	f := &feed{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	go m.run(f)
	return f
}

func (m *Manager) run(f *feed) {
	defer close(f.done)

	var b backoff.BackOff
	if m.newBackOff != nil {
		b = m.newBackOff()
	}

	for {
		err := m.read(f, b)
		if f.ctx.Err() != nil {
			m.closed()
			return
		}

		terr := &types.TransportError{Stream: telemetry.StreamAlerts, Err: err}
		slog.Warn("alertfeed: stream failed", "url", m.url, "err", terr)
		m.metrics.TransportErrors.WithLabelValues(telemetry.StreamAlerts).Inc()
		m.setState(types.Disconnected)

		if b == nil {
			m.discard(f)
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			slog.Warn("alertfeed: giving up reconnecting", "url", m.url)
			m.discard(f)
			return
		}

		t := m.clock.Timer(wait)
		select {
		case <-f.ctx.Done():
			t.Stop()
			m.closed()
			return
		case <-t.C:
		}
		m.metrics.Reconnects.WithLabelValues(telemetry.StreamAlerts).Inc()
		slog.Info("alertfeed: reconnecting", "url", m.url, "after", wait)
	}
}

// read dials once and dispatches alerts until the connection fails.
func (m *Manager) read(f *feed, b backoff.BackOff) error {
	conn, err := m.dialer.Dial(f.ctx, m.url)
	if err != nil {
		return err
	}
	if !f.attach(conn) {
		return f.ctx.Err()
	}
	defer f.detach(conn)

	for {
		ev, err := conn.Next()
		if err != nil {
			return err
		}
		m.setState(types.Connected)
		if b != nil {
			b.Reset()
		}
		if ev.Name != stream.EventAlert {
			continue
		}

		a, err := types.DecodeAlert(ev.Data)
		if err != nil {
			slog.Warn("alertfeed: dropping malformed alert", "err", err)
			m.metrics.MalformedMessages.WithLabelValues(telemetry.StreamAlerts).Inc()
			continue
		}
		m.dispatch(f, a)
	}
}

// dispatch hands a to the listeners registered while f is the active feed.
// A stopped feed can still hold a frame it read before stop; that frame is
// dropped so listeners of a newer feed are never called from two goroutines.
func (m *Manager) dispatch(f *feed, a types.Alert) {
	m.mu.Lock()
	if m.active != f {
		m.mu.Unlock()
		return
	}
	regs := make([]*registration, len(m.listeners))
	copy(regs, m.listeners)
	m.mu.Unlock()

	for _, r := range regs {
		if r.removed.Load() {
			continue
		}
		r.fn(a)
	}
}

// discard drops f so that the next Subscribe opens a new connection.
func (m *Manager) discard(f *feed) {
	m.mu.Lock()
	if m.active == f {
		m.active = nil
	}
	m.mu.Unlock()
	f.stop()
}

// closed marks the stream DISCONNECTED after a deliberate close, unless a
// newer feed has already taken over.
func (m *Manager) closed() {
	m.mu.Lock()
	idle := m.active == nil
	m.mu.Unlock()
	if idle {
		m.setState(types.Disconnected)
	}
}

func (m *Manager) setState(s types.ConnState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed {
		m.metrics.SetConnState(telemetry.StreamAlerts, s)
	}
}

// attach records conn as the live connection unless the feed was stopped
// while dialing, in which case conn is closed.
func (f *feed) attach(conn stream.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		conn.Close()
		return false
	}
	f.conn = conn
	return true
}

func (f *feed) detach(conn stream.Conn) {
	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
	}
	f.mu.Unlock()
	conn.Close()
}

// stop cancels the feed and closes its connection, unblocking a pending read.
func (f *feed) stop() {
	f.cancel()
	f.mu.Lock()
	f.stopped = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
