package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/obsidianstack/spacewatch/monitor/internal/alertfeed"
	"github.com/obsidianstack/spacewatch/monitor/internal/compute"
	"github.com/obsidianstack/spacewatch/monitor/internal/live"
	"github.com/obsidianstack/spacewatch/monitor/internal/store"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// eventQueueSize is the depth of the session event queue.
const eventQueueSize = 64

// History supplies the historical seed.
type History interface {
	Samples(ctx context.Context, limit int) ([]types.Sample, error)
	Alerts(ctx context.Context, limit int) ([]types.Alert, error)
}

// SampleStream reads the live sample stream until it fails.
type SampleStream interface {
	Run(ctx context.Context, sink live.Sink) error
}

// AlertFeed is the shared alert subscription.
type AlertFeed interface {
	Subscribe(fn alertfeed.Listener) (unsubscribe func())
	State() types.ConnState
}

// Config sizes a session. Zero values select the store defaults.
type Config struct {
	WindowCap         int
	SeedLimit         int
	AlertCap          int
	AlertHistoryLimit int
	AlertMaxAge       time.Duration
	PruneInterval     time.Duration
	FreshFor          time.Duration
	FreshnessInterval time.Duration
	Thresholds        compute.Thresholds

	// Reconnect returns the backoff policy for redialing the sample
	// stream. Nil leaves a failed stream DISCONNECTED.
	Reconnect func() backoff.BackOff
}

func (c *Config) setDefaults() {
	if c.SeedLimit <= 0 {
		c.SeedLimit = 300
	}
	if c.AlertHistoryLimit <= 0 {
		c.AlertHistoryLimit = store.DefaultAlertCap
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = 5 * time.Minute
	}
	if c.FreshnessInterval <= 0 {
		c.FreshnessInterval = 10 * time.Second
	}
	if c.Thresholds == (compute.Thresholds{}) {
		c.Thresholds = compute.DefaultThresholds()
	}
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(s *Session) { s.clock = c } }

// WithMetrics records session activity into m.
func WithMetrics(m *telemetry.Metrics) Option { return func(s *Session) { s.metrics = m } }

// Session is one monitoring session. Create with New, start with Run.
type Session struct {
	cfg     Config
	history History
	samples SampleStream
	feed    AlertFeed
	clock   clock.Clock
	metrics *telemetry.Metrics

	events  chan event
	view    atomic.Pointer[View]
	changed chan struct{}

	// Owned by the Run goroutine.
	window        *store.Window
	alerts        *store.AlertSet
	thresholds    compute.Thresholds
	sampleState   types.ConnState
	lastObserved  time.Time
	freshness     types.Freshness
	samplesLoaded bool
	expiry        *clock.Timer
	expiryAt      time.Time
}

// New builds a Session. Nothing is fetched or dialed until Run.
func New(cfg Config, history History, samples SampleStream, feed AlertFeed, opts ...Option) *Session {
	cfg.setDefaults()
	s := &Session{
		cfg:         cfg,
		history:     history,
		samples:     samples,
		feed:        feed,
		clock:       clock.New(),
		events:      make(chan event, eventQueueSize),
		changed:     make(chan struct{}, 1),
		window:      store.NewWindow(cfg.WindowCap),
		alerts:      store.NewAlertSet(cfg.AlertCap, cfg.AlertMaxAge, cfg.FreshFor),
		thresholds:  cfg.Thresholds,
		sampleState: types.Disconnected,
		freshness:   types.Stale,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = telemetry.Discard()
	}
	s.publish()
	return s
}

// View returns the most recently published state. Never nil.
func (s *Session) View() *View { return s.view.Load() }

// Changed is signalled after each publish. Signals coalesce.
func (s *Session) Changed() <-chan struct{} { return s.changed }

// SetThresholds replaces the severity thresholds used for bands. It is
// safe to call from any goroutine; the change applies on the next event.
func (s *Session) SetThresholds(t compute.Thresholds) {
	select {
	case s.events <- thresholdsEvent{t}:
	default:
		slog.Warn("session: event queue full, threshold update dropped")
	}
}

// Run starts the session and blocks until ctx is cancelled. Both stream
// connections are released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := s.feed.Subscribe(func(a types.Alert) {
		s.post(ctx, alertEvent{a})
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.superviseSamples(ctx) }()
	go func() { defer wg.Done(); s.loadSamples(ctx) }()
	go func() { defer wg.Done(); s.loadAlerts(ctx) }()
	defer wg.Wait()

	freshTicker := s.clock.Ticker(s.cfg.FreshnessInterval)
	defer freshTicker.Stop()
	pruneTicker := s.clock.Ticker(s.cfg.PruneInterval)
	defer pruneTicker.Stop()
	defer s.stopExpiry()

	slog.Info("session: started",
		"window_cap", s.window.Cap(), "seed_limit", s.cfg.SeedLimit,
		"alert_history_limit", s.cfg.AlertHistoryLimit)

	for {
		var ev event
		select {
		case <-ctx.Done():
			slog.Info("session: stopping")
			return nil
		case ev = <-s.events:
		case <-freshTicker.C:
			ev = freshnessTick{}
		case <-pruneTicker.C:
			ev = pruneTick{}
		case <-s.expiryC():
			s.expiry = nil
			ev = expiryTick{}
		}
		now := s.clock.Now()
		ev.apply(s, now)
		s.scheduleExpiry(now)
		s.publish()
	}
}

// post enqueues ev unless the session is stopping.
func (s *Session) post(ctx context.Context, ev event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) loadSamples(ctx context.Context) {
	samples, err := s.history.Samples(ctx, s.cfg.SeedLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("session: sample history unavailable, seeding empty", "err", err)
		samples = nil
	}
	s.post(ctx, seedSamplesEvent{samples})
}

func (s *Session) loadAlerts(ctx context.Context) {
	alerts, err := s.history.Alerts(ctx, s.cfg.AlertHistoryLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("session: alert history unavailable, seeding empty", "err", err)
		alerts = nil
	}
	s.post(ctx, seedAlertsEvent{alerts})
}

// superviseSamples runs the sample subscriber and redials it with backoff
// when a Reconnect policy is configured.
func (s *Session) superviseSamples(ctx context.Context) {
	var b backoff.BackOff
	if s.cfg.Reconnect != nil {
		b = s.cfg.Reconnect()
	}
	sink := &sessionSink{s: s, ctx: ctx}
	if b != nil {
		sink.onConnected = b.Reset
	}

	for {
		err := s.samples.Run(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		if b == nil {
			slog.Warn("session: sample stream down, reconnect disabled", "err", err)
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			slog.Warn("session: giving up on sample stream", "err", err)
			return
		}

		t := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.metrics.Reconnects.WithLabelValues(telemetry.StreamSamples).Inc()
		slog.Info("session: reconnecting sample stream", "after", wait)
	}
}

// sessionSink turns subscriber callbacks into queued events.
type sessionSink struct {
	s           *Session
	ctx         context.Context
	onConnected func()
}

func (k *sessionSink) OnSample(x types.Sample) {
	k.s.post(k.ctx, sampleEvent{x})
}

func (k *sessionSink) OnConnState(state types.ConnState, err error) {
	if state == types.Connected && k.onConnected != nil {
		k.onConnected()
	}
	k.s.post(k.ctx, connEvent{state: state, err: err})
}

func (s *Session) expiryC() <-chan time.Time {
	if s.expiry == nil {
		return nil
	}
	return s.expiry.C
}

// scheduleExpiry arms the timer for the earliest fresh-marker deadline.
func (s *Session) scheduleExpiry(now time.Time) {
	next, ok := s.alerts.NextExpiry()
	if !ok {
		s.stopExpiry()
		return
	}
	if s.expiry != nil && next.Equal(s.expiryAt) {
		return
	}
	s.stopExpiry()
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	s.expiry = s.clock.Timer(d)
	s.expiryAt = next
}

func (s *Session) stopExpiry() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}
