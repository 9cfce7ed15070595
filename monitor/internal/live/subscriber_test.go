package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
	"github.com/obsidianstack/spacewatch/monitor/internal/stream/streamtest"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

type stateChange struct {
	state types.ConnState
	err   error
}

// recordingSink forwards every callback to a channel.
type recordingSink struct {
	samples chan types.Sample
	states  chan stateChange
}

func newSink() *recordingSink {
	return &recordingSink{
		samples: make(chan types.Sample, 16),
		states:  make(chan stateChange, 16),
	}
}

func (r *recordingSink) OnSample(s types.Sample) { r.samples <- s }
func (r *recordingSink) OnConnState(st types.ConnState, err error) {
	r.states <- stateChange{st, err}
}

func (r *recordingSink) nextSample(t *testing.T) types.Sample {
	t.Helper()
	select {
	case s := <-r.samples:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
		return types.Sample{}
	}
}

func (r *recordingSink) nextState(t *testing.T) stateChange {
	t.Helper()
	select {
	case s := <-r.states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no state change delivered")
		return stateChange{}
	}
}

func startRun(t *testing.T, sub *Subscriber, sink Sink) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, sink) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRun_DeliversSamplesAndConnects(t *testing.T) {
	d := streamtest.NewDialer()
	sub := New(d, "http://up/api/stream", nil)
	sink := newSink()
	startRun(t, sub, sink)

	conn := d.WaitDial(t)
	require.NotNil(t, conn)
	assert.Equal(t, "http://up/api/stream", conn.URL)

	conn.Send(t, stream.EventMessage, `{"time_tag":"2026-03-01T00:04:00Z","speed":500,"density":10,"bz":-3}`)

	st := sink.nextState(t)
	assert.Equal(t, types.Connected, st.state)
	s := sink.nextSample(t)
	assert.InDelta(t, 4.1815, s.DynamicPressure, 1e-9)

	// Only the transition is reported, not every frame.
	conn.Send(t, stream.EventMessage, `{"time_tag":"2026-03-01T00:05:00Z","speed":400,"density":5,"bz":1}`)
	sink.nextSample(t)
	select {
	case extra := <-sink.states:
		t.Fatalf("unexpected state change %v", extra.state)
	default:
	}
}

func TestRun_MalformedFrameDroppedButConnected(t *testing.T) {
	d := streamtest.NewDialer()
	m := telemetry.Discard()
	sink := newSink()
	startRun(t, New(d, "u", m), sink)
	conn := d.WaitDial(t)

	conn.Send(t, stream.EventMessage, `{"speed": 400}`) // no timestamp
	assert.Equal(t, types.Connected, sink.nextState(t).state)

	conn.Send(t, stream.EventMessage, `{"time_tag":"2026-03-01T00:05:00Z","speed":"fast","density":null,"bz":"-2"}`)
	s := sink.nextSample(t)
	assert.Equal(t, 0.0, s.Speed)
	assert.Equal(t, -2.0, s.Bz)
	assert.Equal(t, 0.0, s.DynamicPressure)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedMessages.WithLabelValues(telemetry.StreamSamples)))
}

func TestRun_IgnoresOtherEventNames(t *testing.T) {
	d := streamtest.NewDialer()
	sink := newSink()
	startRun(t, New(d, "u", nil), sink)
	conn := d.WaitDial(t)

	conn.Send(t, "heartbeat", `{}`)
	conn.Send(t, stream.EventMessage, `{"time_tag":"2026-03-01T00:05:00Z","speed":400,"density":5,"bz":1}`)
	s := sink.nextSample(t)
	assert.Equal(t, 400.0, s.Speed)
}

func TestRun_TransportErrorDisconnectsAndCloses(t *testing.T) {
	d := streamtest.NewDialer()
	m := telemetry.Discard()
	sink := newSink()
	_, done := startRun(t, New(d, "u", m), sink)
	conn := d.WaitDial(t)

	conn.Send(t, stream.EventMessage, `{"time_tag":"2026-03-01T00:05:00Z","speed":400,"density":5,"bz":1}`)
	sink.nextState(t)
	sink.nextSample(t)

	boom := errors.New("connection reset")
	conn.Fail(boom)

	st := sink.nextState(t)
	assert.Equal(t, types.Disconnected, st.state)
	var terr *types.TransportError
	require.ErrorAs(t, st.err, &terr)
	assert.Equal(t, telemetry.StreamSamples, terr.Stream)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after transport error")
	}
	assert.True(t, conn.Closed(), "connection must be released")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrors.WithLabelValues(telemetry.StreamSamples)))
}

func TestRun_DialErrorDisconnects(t *testing.T) {
	d := streamtest.NewDialer()
	d.SetErr(errors.New("refused"))
	sink := newSink()
	_, done := startRun(t, New(d, "u", nil), sink)

	assert.Equal(t, types.Disconnected, sink.nextState(t).state)
	err := <-done
	var terr *types.TransportError
	assert.ErrorAs(t, err, &terr)
}

func TestRun_CancelClosesConnection(t *testing.T) {
	d := streamtest.NewDialer()
	sink := newSink()
	cancel, done := startRun(t, New(d, "u", nil), sink)
	conn := d.WaitDial(t)

	// Never connected: the connection is still released on teardown.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, conn.Closed())
	select {
	case st := <-sink.states:
		t.Fatalf("cancellation must not report a state change, got %v", st.state)
	default:
	}
}
