package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/obsidianstack/spacewatch/monitor/internal/session"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// ViewSource supplies the current session state.
type ViewSource interface {
	View() *session.View
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	source ViewSource
	mux    *http.ServeMux
}

// New creates a Handler reading from source and registers all routes.
func New(source ViewSource) http.Handler {
	h := &Handler{source: source, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.get(h.health))
	h.mux.HandleFunc("/api/v1/latest", h.get(h.latest))
	h.mux.HandleFunc("/api/v1/window", h.get(h.window))
	h.mux.HandleFunc("/api/v1/status", h.get(h.status))
	h.mux.HandleFunc("/api/v1/alerts", h.get(h.alerts))
	h.mux.HandleFunc("/api/v1/snapshot", h.get(h.snapshot))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// get rejects every method but GET and hands the current view to fn.
func (h *Handler) get(fn func(http.ResponseWriter, *session.View)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, h.source.View())
	}
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, v *session.View) {
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Freshness: v.Freshness})
}

func (h *Handler) latest(w http.ResponseWriter, v *session.View) {
	l := toLatest(v)
	if l == nil {
		jsonErr(w, http.StatusNotFound, "no samples yet")
		return
	}
	jsonResp(w, http.StatusOK, l)
}

func (h *Handler) window(w http.ResponseWriter, v *session.View) {
	samples := toSamples(v.Window)
	jsonResp(w, http.StatusOK, WindowResponse{Count: len(samples), Samples: samples})
}

func (h *Handler) status(w http.ResponseWriter, v *session.View) {
	jsonResp(w, http.StatusOK, toStatus(v))
}

func (h *Handler) alerts(w http.ResponseWriter, v *session.View) {
	jsonResp(w, http.StatusOK, toAlerts(v.Alerts))
}

func (h *Handler) snapshot(w http.ResponseWriter, v *session.View) {
	jsonResp(w, http.StatusOK, BuildSnapshot(v))
}

// BuildSnapshot assembles the full document served by /api/v1/snapshot.
func BuildSnapshot(v *session.View) SnapshotResponse {
	return SnapshotResponse{
		Latest:      toLatest(v),
		Window:      toSamples(v.Window),
		Status:      toStatus(v),
		Alerts:      toAlerts(v.Alerts),
		GeneratedAt: v.PublishedAt.UTC().Format(time.RFC3339Nano),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toSample(s types.Sample) SampleResponse {
	return SampleResponse{
		Timestamp:       s.Timestamp.UTC().Format(time.RFC3339Nano),
		Speed:           s.Speed,
		Density:         s.Density,
		Bz:              s.Bz,
		DynamicPressure: s.DynamicPressure,
	}
}

func toSamples(in []types.Sample) []SampleResponse {
	out := make([]SampleResponse, 0, len(in))
	for _, s := range in {
		out = append(out, toSample(s))
	}
	return out
}

func toLatest(v *session.View) *LatestResponse {
	if v.Latest == nil || v.Bands == nil {
		return nil
	}
	return &LatestResponse{Sample: toSample(*v.Latest), Bands: *v.Bands}
}

func toAlerts(in []session.AlertView) []AlertResponse {
	out := make([]AlertResponse, 0, len(in))
	for _, a := range in {
		out = append(out, AlertResponse{
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339Nano),
			Code:      a.Code,
			Level:     a.Level,
			Payload:   a.Payload,
			Fresh:     a.Fresh,
		})
	}
	return out
}

func toStatus(v *session.View) StatusResponse {
	st := StatusResponse{
		SampleStream:  v.SampleState,
		AlertStream:   v.AlertState,
		Freshness:     v.Freshness,
		SamplesLoaded: v.SamplesLoaded,
		AlertsLoaded:  v.AlertsLoaded,
		WindowLength:  len(v.Window),
		AlertCount:    len(v.Alerts),
		FreshAlerts:   v.FreshCount(),
		Diagnostics:   computeDiagnostics(v),
	}
	if !v.LastObserved.IsZero() {
		st.LastObserved = v.LastObserved.UTC().Format(time.RFC3339Nano)
		age := v.PublishedAt.Sub(v.LastObserved).Seconds()
		st.AgeSeconds = &age
	}
	return st
}
