package session

import (
	"log/slog"
	"time"

	"github.com/obsidianstack/spacewatch/monitor/internal/compute"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// event is one entry of the session queue. apply runs on the Run goroutine
// and runs to completion before the next event is taken.
type event interface {
	apply(s *Session, now time.Time)
}

type connEvent struct {
	state types.ConnState
	err   error
}

type (
	sampleEvent      struct{ sample types.Sample }
	alertEvent       struct{ alert types.Alert }
	seedSamplesEvent struct{ samples []types.Sample }
	seedAlertsEvent  struct{ alerts []types.Alert }
	thresholdsEvent  struct{ t compute.Thresholds }
	freshnessTick    struct{}
	pruneTick        struct{}
	expiryTick       struct{}
)

func (e sampleEvent) apply(s *Session, now time.Time) {
	if inOrder := s.window.Append(e.sample); !inOrder {
		slog.Warn("session: out-of-order sample inserted",
			"ts", e.sample.Timestamp, "window_len", s.window.Len())
		s.metrics.SamplesOutOfOrder.Inc()
	}
	s.metrics.SamplesReceived.Inc()
	s.metrics.WindowLength.Set(float64(s.window.Len()))

	s.setSampleState(types.Connected, nil)
	s.observe(e.sample.Timestamp)
	s.recomputeFreshness(now)
}

func (e connEvent) apply(s *Session, now time.Time) {
	s.setSampleState(e.state, e.err)
}

func (e alertEvent) apply(s *Session, now time.Time) {
	res := s.alerts.Merge(e.alert, now)
	s.metrics.AlertsMerged.Inc()
	if res.Duplicate {
		s.metrics.AlertsDuplicate.Inc()
	}
	if res.Evicted > 0 {
		s.metrics.AlertsEvicted.Add(float64(res.Evicted))
	}
	s.metrics.AlertCount.Set(float64(s.alerts.Len()))
	slog.Debug("session: alert merged",
		"key", e.alert.Key().String(), "duplicate", res.Duplicate, "fresh", res.Fresh)
}

func (e seedSamplesEvent) apply(s *Session, now time.Time) {
	s.window.Seed(e.samples)
	s.samplesLoaded = true
	s.metrics.WindowLength.Set(float64(s.window.Len()))
	if latest, ok := s.window.Latest(); ok {
		s.observe(latest.Timestamp)
	}
	s.recomputeFreshness(now)
	slog.Info("session: sample window seeded", "history", len(e.samples), "window_len", s.window.Len())
}

func (e seedAlertsEvent) apply(s *Session, now time.Time) {
	s.alerts.SeedHistory(e.alerts)
	s.metrics.AlertCount.Set(float64(s.alerts.Len()))
	slog.Info("session: alert set seeded", "history", len(e.alerts), "alerts", s.alerts.Len())
}

func (e thresholdsEvent) apply(s *Session, now time.Time) {
	s.thresholds = e.t
	slog.Info("session: thresholds updated")
}

func (freshnessTick) apply(s *Session, now time.Time) {
	s.recomputeFreshness(now)
}

func (pruneTick) apply(s *Session, now time.Time) {
	if n := s.alerts.Prune(now); n > 0 {
		s.metrics.AlertsPruned.Add(float64(n))
		s.metrics.AlertCount.Set(float64(s.alerts.Len()))
		slog.Debug("session: pruned alerts", "removed", n, "remaining", s.alerts.Len())
	}
}

func (expiryTick) apply(s *Session, now time.Time) {
	s.alerts.Expire(now)
}

// observe advances lastObserved. An out-of-order sample never moves it back.
func (s *Session) observe(ts time.Time) {
	if ts.After(s.lastObserved) {
		s.lastObserved = ts
	}
}

func (s *Session) setSampleState(state types.ConnState, err error) {
	if s.sampleState == state {
		return
	}
	s.sampleState = state
	s.metrics.SetConnState(telemetry.StreamSamples, state)
	if err != nil {
		slog.Warn("session: sample stream "+string(state), "err", err)
	} else {
		slog.Info("session: sample stream " + string(state))
	}
}

func (s *Session) recomputeFreshness(now time.Time) {
	f := compute.ClassifyFreshness(s.lastObserved, now)
	if f == s.freshness {
		return
	}
	slog.Info("session: freshness changed", "from", s.freshness, "to", f, "last_observed", s.lastObserved)
	s.freshness = f
	s.metrics.SetFreshness(f)
}
