package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

const namespace = "spacewatch"

// Stream label values.
const (
	StreamSamples = "samples"
	StreamAlerts  = "alerts"
)

// Metrics holds all collectors recorded by the monitor.
type Metrics struct {
	// Samples
	SamplesReceived   prometheus.Counter
	SamplesOutOfOrder prometheus.Counter
	WindowLength      prometheus.Gauge

	// Alerts
	AlertsMerged     prometheus.Counter
	AlertsDuplicate  prometheus.Counter
	AlertsPruned     prometheus.Counter
	AlertsEvicted    prometheus.Counter
	AlertCount       prometheus.Gauge
	FeedListeners    prometheus.Gauge
	WebhookDelivered *prometheus.CounterVec

	// Streams and fetches
	MalformedMessages *prometheus.CounterVec
	TransportErrors   *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	StreamConnected   *prometheus.GaugeVec
	FetchErrors       *prometheus.CounterVec

	// Derived state
	Freshness *prometheus.GaugeVec
	WSClients prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SamplesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "received_total",
			Help:      "Samples committed to the window from the live stream",
		}),
		SamplesOutOfOrder: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "out_of_order_total",
			Help:      "Live samples older than the window tail, inserted in sorted position",
		}),
		WindowLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "window_length",
			Help:      "Number of samples currently held in the window",
		}),

		AlertsMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "merged_total",
			Help:      "Streamed alerts merged into the alert set",
		}),
		AlertsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "duplicates_total",
			Help:      "Streamed alerts whose identity key was already present",
		}),
		AlertsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "pruned_total",
			Help:      "Alerts removed by the periodic age prune",
		}),
		AlertsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "evicted_total",
			Help:      "Alerts dropped by the alert set size cap",
		}),
		AlertCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "count",
			Help:      "Number of alerts currently held",
		}),
		FeedListeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "feed_listeners",
			Help:      "Listeners registered on the shared alert feed",
		}),
		WebhookDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook notification attempts by target type and result",
		}, []string{"type", "result"}),

		MalformedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "malformed_messages_total",
			Help:      "Stream payloads dropped because they could not be decoded",
		}, []string{"stream"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "transport_errors_total",
			Help:      "Push-stream connection failures",
		}, []string{"stream"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Push-stream reconnect attempts",
		}, []string{"stream"}),
		StreamConnected: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 when the stream is CONNECTED, 0 when DISCONNECTED",
		}, []string{"stream"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fetch_errors_total",
			Help:      "Failed historical fetches by resource",
		}, []string{"resource"}),

		Freshness: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "freshness",
			Help:      "1 for the current freshness state, 0 for the others",
		}, []string{"state"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket snapshot clients",
		}),
	}
}

// Discard returns Metrics registered on a private registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// SetConnState records state for the named stream.
func (m *Metrics) SetConnState(stream string, state types.ConnState) {
	v := 0.0
	if state == types.Connected {
		v = 1
	}
	m.StreamConnected.WithLabelValues(stream).Set(v)
}

// SetFreshness sets the gauge for f to 1 and the other states to 0.
func (m *Metrics) SetFreshness(f types.Freshness) {
	for _, s := range []types.Freshness{types.Live, types.Pending, types.Stale} {
		v := 0.0
		if s == f {
			v = 1
		}
		m.Freshness.WithLabelValues(string(s)).Set(v)
	}
}

// Handler serves the Prometheus text exposition of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
