package api

import "github.com/obsidianstack/spacewatch/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Freshness types.Freshness `json:"freshness"`
}

// SampleResponse is one solar-wind sample.
type SampleResponse struct {
	Timestamp       string  `json:"time_tag"` // RFC3339Nano
	Speed           float64 `json:"speed"`
	Density         float64 `json:"density"`
	Bz              float64 `json:"bz"`
	DynamicPressure float64 `json:"dynamic_pressure"`
}

// LatestResponse is the payload for GET /api/v1/latest.
type LatestResponse struct {
	Sample SampleResponse `json:"sample"`
	Bands  types.Bands    `json:"bands"`
}

// WindowResponse is the payload for GET /api/v1/window.
type WindowResponse struct {
	Count   int              `json:"count"`
	Samples []SampleResponse `json:"samples"`
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	SampleStream  types.ConnState  `json:"sample_stream"`
	AlertStream   types.ConnState  `json:"alert_stream"`
	Freshness     types.Freshness  `json:"freshness"`
	LastObserved  string           `json:"last_observed,omitempty"` // RFC3339Nano
	AgeSeconds    *float64         `json:"age_seconds,omitempty"`
	SamplesLoaded bool             `json:"samples_loaded"`
	AlertsLoaded  bool             `json:"alerts_loaded"`
	WindowLength  int              `json:"window_length"`
	AlertCount    int              `json:"alert_count"`
	FreshAlerts   int              `json:"fresh_alerts"`
	Diagnostics   []DiagnosticHint `json:"diagnostics"`
}

// AlertResponse is one entry of GET /api/v1/alerts.
type AlertResponse struct {
	Timestamp string         `json:"ts"` // RFC3339Nano
	Code      string         `json:"code"`
	Level     types.Level    `json:"level"`
	Payload   map[string]any `json:"payload,omitempty"`
	Fresh     bool           `json:"fresh"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Latest      *LatestResponse  `json:"latest"`
	Window      []SampleResponse `json:"window"`
	Status      StatusResponse   `json:"status"`
	Alerts      []AlertResponse  `json:"alerts"`
	GeneratedAt string           `json:"generated_at"` // RFC3339Nano
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
