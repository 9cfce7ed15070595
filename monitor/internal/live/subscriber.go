package live

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Sink receives what the subscriber reads. Calls come from the Run
// goroutine, one at a time.
type Sink interface {
	OnSample(types.Sample)
	OnConnState(state types.ConnState, err error)
}

// Subscriber reads the live sample stream.
type Subscriber struct {
	dialer  stream.Dialer
	url     string
	metrics *telemetry.Metrics
}

// New returns a Subscriber for the stream at url. metrics may be nil.
func New(dialer stream.Dialer, url string, metrics *telemetry.Metrics) *Subscriber {
	if metrics == nil {
		metrics = telemetry.Discard()
	}
	return &Subscriber{dialer: dialer, url: url, metrics: metrics}
}

// URL returns the stream address.
func (s *Subscriber) URL() string { return s.url }

// Run opens the stream and reads until the transport fails or ctx is
// cancelled. The connection is closed before Run returns in every case.
// Cancellation returns ctx.Err(); a transport failure returns
// *types.TransportError after reporting DISCONNECTED.
func (s *Subscriber) Run(ctx context.Context, sink Sink) error {
	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.fail(sink, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	slog.Debug("live: stream opened", "url", s.url)

	connected := false
	for {
		ev, err := conn.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.fail(sink, err)
		}

		if !connected {
			connected = true
			s.metrics.SetConnState(telemetry.StreamSamples, types.Connected)
			sink.OnConnState(types.Connected, nil)
		}

		if ev.Name != stream.EventMessage {
			continue
		}
		sample, err := types.DecodeSample(ev.Data)
		if err != nil {
			slog.Warn("live: dropping malformed sample", "err", err)
			s.metrics.MalformedMessages.WithLabelValues(telemetry.StreamSamples).Inc()
			continue
		}
		sink.OnSample(sample)
	}
}

func (s *Subscriber) fail(sink Sink, err error) error {
	terr := &types.TransportError{Stream: telemetry.StreamSamples, Err: err}
	slog.Warn("live: stream failed", "url", s.url, "err", err)
	s.metrics.TransportErrors.WithLabelValues(telemetry.StreamSamples).Inc()
	s.metrics.SetConnState(telemetry.StreamSamples, types.Disconnected)
	sink.OnConnState(types.Disconnected, terr)
	return terr
}
