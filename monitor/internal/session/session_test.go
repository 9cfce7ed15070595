package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/spacewatch/monitor/internal/alertfeed"
	"github.com/obsidianstack/spacewatch/monitor/internal/compute"
	"github.com/obsidianstack/spacewatch/monitor/internal/live"
	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
	"github.com/obsidianstack/spacewatch/monitor/internal/stream/streamtest"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes -------------------------------------------------------------------

type fakeHistory struct {
	samples    []types.Sample
	alerts     []types.Alert
	err        error
	alertsGate chan struct{}
}

func (f *fakeHistory) Samples(ctx context.Context, limit int) ([]types.Sample, error) {
	if f.err != nil {
		return nil, &types.FetchError{Resource: "samples", Err: f.err}
	}
	return f.samples, nil
}

func (f *fakeHistory) Alerts(ctx context.Context, limit int) ([]types.Alert, error) {
	if f.alertsGate != nil {
		select {
		case <-f.alertsGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, &types.FetchError{Resource: "alerts", Err: f.err}
	}
	return f.alerts, nil
}

// --- harness -----------------------------------------------------------------

type harness struct {
	s       *Session
	mock    *clock.Mock
	samples *streamtest.Dialer
	alerts  *streamtest.Dialer
	feed    *alertfeed.Manager
	metrics *telemetry.Metrics
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, cfg Config, hist History) *harness {
	t.Helper()
	h := &harness{
		mock:    clock.NewMock(),
		samples: streamtest.NewDialer(),
		alerts:  streamtest.NewDialer(),
		metrics: telemetry.Discard(),
		done:    make(chan error, 1),
	}
	h.mock.Set(base)
	h.feed = alertfeed.New(h.alerts, "http://up/api/alerts/stream", alertfeed.WithMetrics(h.metrics))
	sub := live.New(h.samples, "http://up/api/stream", h.metrics)
	h.s = New(cfg, hist, sub, h.feed, WithClock(h.mock), WithMetrics(h.metrics))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
		h.feed.Close()
	})
	return h
}

func (h *harness) eventually(t *testing.T, cond func(v *View) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.s.View()) }, 2*time.Second, 5*time.Millisecond, msg)
}

// advance moves the mock clock forward in steps so that every ticker gets
// a chance to deliver.
func (h *harness) advance(total, step time.Duration) {
	for d := time.Duration(0); d < total; d += step {
		h.mock.Add(step)
	}
}

func sampleJSON(ts time.Time, speed, density, bz float64) string {
	return fmt.Sprintf(`{"time_tag":%q,"speed":%v,"density":%v,"bz":%v}`,
		ts.Format(time.RFC3339), speed, density, bz)
}

func alertJSON(code string, ts time.Time) string {
	return fmt.Sprintf(`{"ts":%q,"code":%q,"level":"warning"}`, ts.Format(time.RFC3339), code)
}

func codes(v *View) []string {
	out := make([]string, len(v.Alerts))
	for i, a := range v.Alerts {
		out[i] = a.Code
	}
	return out
}

func findAlert(v *View, code string) (AlertView, bool) {
	for _, a := range v.Alerts {
		if a.Code == code {
			return a, true
		}
	}
	return AlertView{}, false
}

// --- samples -----------------------------------------------------------------

func TestSession_SeedThenLiveSample(t *testing.T) {
	t1, t2, t3 := base.Add(-3*time.Minute), base.Add(-2*time.Minute), base.Add(-time.Minute)
	hist := &fakeHistory{samples: []types.Sample{
		types.NewSample(t2, 310, 4, 1),
		types.NewSample(t3, 300, 5, 0),
		types.NewSample(t1, 320, 3, 2),
	}}
	h := start(t, Config{}, hist)

	conn := h.samples.WaitDial(t)
	h.eventually(t, func(v *View) bool { return v.SamplesLoaded }, "window never seeded")

	v := h.s.View()
	require.Len(t, v.Window, 3)
	assert.Equal(t, t1, v.Window[0].Timestamp)
	assert.Equal(t, t3, v.Latest.Timestamp)
	assert.Equal(t, types.Live, v.Freshness, "seeded history counts as observed")

	conn.Send(t, stream.EventMessage, sampleJSON(base, 500, 10, -3))
	h.eventually(t, func(v *View) bool { return v.Latest != nil && v.Latest.Timestamp.Equal(base) }, "live sample not applied")

	v = h.s.View()
	assert.InDelta(t, 4.1815, v.Latest.DynamicPressure, 1e-9)
	assert.Len(t, v.Window, 4)
	assert.Equal(t, types.Connected, v.SampleState)
	assert.Equal(t, types.Live, v.Freshness)
	assert.True(t, v.LastObserved.Equal(base))
	require.NotNil(t, v.Bands)
	assert.Equal(t, types.Bands{
		Speed:           types.Yellow,
		Density:         types.Yellow,
		Bz:              types.Green,
		DynamicPressure: types.Yellow,
	}, *v.Bands)
}

func TestSession_OutOfOrderSampleKeepsWindowSorted(t *testing.T) {
	h := start(t, Config{}, &fakeHistory{})
	conn := h.samples.WaitDial(t)
	h.eventually(t, func(v *View) bool { return v.SamplesLoaded }, "not seeded")

	conn.Send(t, stream.EventMessage, sampleJSON(base, 400, 5, 0))
	conn.Send(t, stream.EventMessage, sampleJSON(base.Add(-time.Minute), 410, 5, 0))
	h.eventually(t, func(v *View) bool { return len(v.Window) == 2 }, "samples not applied")

	v := h.s.View()
	assert.True(t, v.Window[0].Timestamp.Before(v.Window[1].Timestamp))
	assert.True(t, v.LastObserved.Equal(base), "an older sample must not move lastObserved back")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SamplesOutOfOrder))
}

func TestSession_WindowCap(t *testing.T) {
	h := start(t, Config{WindowCap: 5}, &fakeHistory{})
	conn := h.samples.WaitDial(t)
	h.eventually(t, func(v *View) bool { return v.SamplesLoaded }, "not seeded")

	for i := 0; i < 12; i++ {
		conn.Send(t, stream.EventMessage, sampleJSON(base.Add(time.Duration(i)*time.Minute), 400, 5, 0))
	}
	last := base.Add(11 * time.Minute)
	h.eventually(t, func(v *View) bool { return v.Latest != nil && v.Latest.Timestamp.Equal(last) }, "not all applied")

	v := h.s.View()
	require.Len(t, v.Window, 5)
	assert.Equal(t, base.Add(7*time.Minute), v.Window[0].Timestamp)
}

func TestSession_FreshnessFollowsClock(t *testing.T) {
	hist := &fakeHistory{samples: []types.Sample{types.NewSample(base, 400, 5, 0)}}
	h := start(t, Config{}, hist)
	h.eventually(t, func(v *View) bool { return v.SamplesLoaded && v.Freshness == types.Live }, "not live")

	h.advance(5*time.Minute+30*time.Second, 10*time.Second)
	h.eventually(t, func(v *View) bool { return v.Freshness == types.Pending }, "expected PENDING after 5m")

	h.advance(time.Minute, 10*time.Second)
	h.eventually(t, func(v *View) bool { return v.Freshness == types.Stale }, "expected STALE after 6m")
}

func TestSession_NoHistoryIsStale(t *testing.T) {
	h := start(t, Config{}, &fakeHistory{err: errors.New("upstream down")})
	h.eventually(t, func(v *View) bool { return v.SamplesLoaded && v.AlertsLoaded }, "not loaded")

	v := h.s.View()
	assert.Empty(t, v.Window)
	assert.Nil(t, v.Latest)
	assert.Nil(t, v.Bands)
	assert.Equal(t, types.Stale, v.Freshness)
	assert.Equal(t, types.Disconnected, v.SampleState)
}

// --- sample stream supervision ---------------------------------------------

func TestSession_TransportErrorWithoutReconnect(t *testing.T) {
	h := start(t, Config{}, &fakeHistory{})
	conn := h.samples.WaitDial(t)
	conn.Send(t, stream.EventMessage, sampleJSON(base, 400, 5, 0))
	h.eventually(t, func(v *View) bool { return v.SampleState == types.Connected }, "not connected")

	conn.Fail(errors.New("reset"))
	h.eventually(t, func(v *View) bool { return v.SampleState == types.Disconnected }, "not disconnected")
	conn.WaitClosed(t)

	h.mock.Add(time.Minute)
	h.samples.AssertNoDial(t, 50*time.Millisecond)
	// The window survives the failure.
	assert.Len(t, h.s.View().Window, 1)
}

func TestSession_TransportErrorReconnects(t *testing.T) {
	cfg := Config{Reconnect: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Second) }}
	h := start(t, cfg, &fakeHistory{})
	conn := h.samples.WaitDial(t)
	conn.Send(t, stream.EventMessage, sampleJSON(base, 400, 5, 0))
	h.eventually(t, func(v *View) bool { return v.SampleState == types.Connected }, "not connected")

	conn.Fail(errors.New("reset"))
	h.eventually(t, func(v *View) bool { return v.SampleState == types.Disconnected }, "not disconnected")

	require.Eventually(t, func() bool {
		h.mock.Add(time.Second)
		return h.samples.Dials() == 2
	}, 2*time.Second, 10*time.Millisecond)
	again := h.samples.WaitDial(t)
	require.NotNil(t, again)

	again.Send(t, stream.EventMessage, sampleJSON(base.Add(time.Minute), 400, 5, 0))
	h.eventually(t, func(v *View) bool { return v.SampleState == types.Connected && len(v.Window) == 2 }, "not reconnected")
	assert.GreaterOrEqual(t, testutil.ToFloat64(h.metrics.Reconnects.WithLabelValues(telemetry.StreamSamples)), 1.0)
}

func TestSession_TeardownReleasesConnections(t *testing.T) {
	h := start(t, Config{}, &fakeHistory{})
	sconn := h.samples.WaitDial(t)
	aconn := h.alerts.WaitDial(t)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err // let Cleanup drain it
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	sconn.WaitClosed(t)
	aconn.WaitClosed(t)
	assert.Equal(t, 0, h.feed.Listeners())
}

// --- alerts ------------------------------------------------------------------

func TestSession_AlertDedupAndFreshExpiry(t *testing.T) {
	t0, t1, t2 := base.Add(-2*time.Minute), base.Add(-time.Minute), base
	hist := &fakeHistory{alerts: []types.Alert{
		{Timestamp: t0, Code: "A", Level: types.LevelWarning},
		{Timestamp: t1, Code: "B", Level: types.LevelInfo},
	}}
	h := start(t, Config{}, hist)
	conn := h.alerts.WaitDial(t)
	h.eventually(t, func(v *View) bool { return v.AlertsLoaded }, "alerts not seeded")
	assert.Equal(t, []string{"A", "B"}, codes(h.s.View()))

	conn.Send(t, stream.EventAlert, alertJSON("A", t0))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.AlertsDuplicate) == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.eventually(t, func(v *View) bool { return len(v.Alerts) == 2 }, "duplicate changed size")
	assert.Equal(t, []string{"A", "B"}, codes(h.s.View()))

	conn.Send(t, stream.EventAlert, alertJSON("C", t2))
	h.eventually(t, func(v *View) bool {
		c, ok := findAlert(v, "C")
		return ok && c.Fresh
	}, "C not fresh after merge")
	assert.Equal(t, []string{"C", "A", "B"}, codes(h.s.View()))

	h.mock.Add(10 * time.Second)
	h.eventually(t, func(v *View) bool {
		c, ok := findAlert(v, "C")
		return ok && !c.Fresh
	}, "C still fresh after 10s")
}

func TestSession_AlertBeforeHistoryIsNotFresh(t *testing.T) {
	gate := make(chan struct{})
	hist := &fakeHistory{
		alerts:     []types.Alert{{Timestamp: base.Add(-time.Minute), Code: "OLD", Level: types.LevelInfo}},
		alertsGate: gate,
	}
	h := start(t, Config{}, hist)
	conn := h.alerts.WaitDial(t)

	conn.Send(t, stream.EventAlert, alertJSON("EARLY", base))
	h.eventually(t, func(v *View) bool { _, ok := findAlert(v, "EARLY"); return ok }, "early alert missing")
	early, _ := findAlert(h.s.View(), "EARLY")
	assert.False(t, early.Fresh)
	assert.False(t, h.s.View().AlertsLoaded)

	close(gate)
	h.eventually(t, func(v *View) bool { return v.AlertsLoaded }, "not seeded")
	assert.Equal(t, []string{"EARLY", "OLD"}, codes(h.s.View()))
	assert.Zero(t, h.s.View().FreshCount())
}

func TestSession_PruneOnTimer(t *testing.T) {
	hist := &fakeHistory{alerts: []types.Alert{
		{Timestamp: base, Code: "NEW", Level: types.LevelInfo},
		{Timestamp: base.Add(-4 * time.Minute), Code: "OLD", Level: types.LevelInfo},
	}}
	h := start(t, Config{}, hist)
	h.eventually(t, func(v *View) bool { return v.AlertsLoaded }, "not seeded")

	h.advance(5*time.Minute, 10*time.Second)
	h.eventually(t, func(v *View) bool { return len(v.Alerts) == 1 }, "old alert not pruned")
	assert.Equal(t, []string{"NEW"}, codes(h.s.View()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertsPruned))
}

func TestSession_SetThresholds(t *testing.T) {
	hist := &fakeHistory{samples: []types.Sample{types.NewSample(base, 450, 5, 0)}}
	h := start(t, Config{}, hist)
	h.eventually(t, func(v *View) bool { return v.Bands != nil }, "not seeded")
	assert.Equal(t, types.Green, h.s.View().Bands.Speed)

	th := compute.DefaultThresholds()
	th.Speed = compute.Ceilings{Green: 400, Yellow: 440}
	h.s.SetThresholds(th)
	h.eventually(t, func(v *View) bool { return v.Bands.Speed == types.Red }, "thresholds not applied")
}
