package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/obsidianstack/spacewatch/monitor/internal/compute"
	"github.com/obsidianstack/spacewatch/monitor/internal/session"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// DiagnosticHint is one human-readable insight about the feed. Dashboards
// show these as chips; Detail explains the condition in plain English.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label (≤ 5 words).
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is an optional numeric value, e.g. data age in seconds.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from a session view.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(v *session.View) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Connectivity ─────────────────────────────────────────────────────────
	if v.SampleState == types.Disconnected {
		hints = append(hints, DiagnosticHint{
			Key:   "sample_stream_down",
			Level: "critical",
			Title: "Sample stream down",
			Detail: "The live solar-wind stream is not connected. The window still " +
				"shows what was received before, but nothing new will arrive until " +
				"the stream reconnects. Check that the upstream API is reachable.",
		})
	}
	if v.AlertState == types.Disconnected {
		hints = append(hints, DiagnosticHint{
			Key:   "alert_stream_down",
			Level: "warning",
			Title: "Alert stream down",
			Detail: "The alert stream is not connected. Alerts already shown remain, " +
				"but new alerts will not appear until it reconnects.",
		})
	}

	// ── Warming up ──────────────────────────────────────────────────────────
	if !v.SamplesLoaded || !v.AlertsLoaded {
		hints = append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Loading history",
			Detail: "Historical samples or alerts are still being fetched. " +
				"Alerts received before the history arrives are never flagged as new.",
		})
	}

	// ── Freshness ───────────────────────────────────────────────────────────
	if !v.LastObserved.IsZero() {
		age := v.PublishedAt.Sub(v.LastObserved)
		secs := age.Seconds()
		switch v.Freshness {
		case types.Stale:
			hints = append(hints, DiagnosticHint{
				Key:   "data_stale",
				Level: "critical",
				Title: "Data is stale",
				Detail: fmt.Sprintf(
					"The newest sample is %s old. Upstream usually publishes every minute, "+
						"so the values shown no longer describe current conditions.",
					age.Truncate(time.Second)),
				Value: &secs,
			})
		case types.Pending:
			hints = append(hints, DiagnosticHint{
				Key:   "data_pending",
				Level: "warning",
				Title: "Update overdue",
				Detail: fmt.Sprintf(
					"No sample for %s. This is often a short upstream delay; "+
						"it becomes stale after %s.",
					age.Truncate(time.Second), compute.PendingFor),
				Value: &secs,
			})
		}
	} else if v.SamplesLoaded {
		hints = append(hints, DiagnosticHint{
			Key:    "no_data",
			Level:  "critical",
			Title:  "No data",
			Detail: "No sample has been observed yet, neither from history nor from the live stream.",
		})
	}

	// ── Severity bands ──────────────────────────────────────────────────────
	if v.Latest != nil && v.Bands != nil {
		hints = append(hints, bandHints(*v.Latest, *v.Bands)...)
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  "ok",
			Title:  "All clear",
			Detail: "Both streams are connected, data is live and every metric is in the green band.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

// bandHints reports every metric outside the green band.
func bandHints(s types.Sample, b types.Bands) []DiagnosticHint {
	metrics := []struct {
		key, name, unit string
		band            types.Band
		value           float64
	}{
		{"speed", "Solar wind speed", "km/s", b.Speed, s.Speed},
		{"density", "Proton density", "p/cm³", b.Density, s.Density},
		{"dynamic_pressure", "Dynamic pressure", "nPa", b.DynamicPressure, s.DynamicPressure},
		{"bz", "Southward Bz", "nT", b.Bz, s.Bz},
	}

	var hints []DiagnosticHint
	for _, m := range metrics {
		var level string
		switch m.band {
		case types.Red:
			level = "critical"
		case types.Yellow:
			level = "warning"
		default:
			continue
		}
		v := m.value
		hints = append(hints, DiagnosticHint{
			Key:    "band_" + m.key,
			Level:  level,
			Title:  fmt.Sprintf("%s %s", m.name, m.band),
			Detail: fmt.Sprintf("%s is %.1f %s, in the %s band.", m.name, m.value, m.unit, m.band),
			Value:  &v,
		})
	}
	return hints
}
