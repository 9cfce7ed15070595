package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level is an alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Rank orders levels: info < warning < critical.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

// ParseLevel maps a wire value to a Level. Unknown values become info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelCritical:
		return LevelCritical
	case LevelWarning:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Alert is one timestamped, coded severity event. Payload is opaque.
type Alert struct {
	Timestamp time.Time      `json:"ts"`
	Code      string         `json:"code"`
	Level     Level          `json:"level"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AlertKey is the deduplication identity of an alert. Two alerts with the
// same code and timestamp are the same alert regardless of payload.
type AlertKey struct {
	Code string
	At   int64 // unix nanoseconds
}

// String renders the key as "code@RFC3339Nano".
func (k AlertKey) String() string {
	return k.Code + "@" + time.Unix(0, k.At).UTC().Format(time.RFC3339Nano)
}

// Key returns the identity key of a.
func (a Alert) Key() AlertKey {
	return AlertKey{Code: a.Code, At: a.Timestamp.UnixNano()}
}

type rawAlert struct {
	TS      string         `json:"ts"`
	Code    string         `json:"code"`
	Level   string         `json:"level"`
	Payload map[string]any `json:"payload"`
}

// DecodeAlert parses one upstream alert record.
func DecodeAlert(data []byte) (Alert, error) {
	var raw rawAlert
	if err := json.Unmarshal(data, &raw); err != nil {
		return Alert{}, fmt.Errorf("%w: alert: %v", ErrMalformed, err)
	}
	if raw.Code == "" {
		return Alert{}, fmt.Errorf("%w: alert: missing code", ErrMalformed)
	}
	ts, err := ParseTimestamp(raw.TS)
	if err != nil {
		return Alert{}, fmt.Errorf("%w: alert %s: %v", ErrMalformed, raw.Code, err)
	}
	return Alert{
		Timestamp: ts,
		Code:      raw.Code,
		Level:     ParseLevel(raw.Level),
		Payload:   raw.Payload,
	}, nil
}

// DecodeAlerts parses a JSON array of alert records, skipping malformed ones.
func DecodeAlerts(data []byte) (alerts []Alert, dropped int, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, 0, fmt.Errorf("%w: alert list: %v", ErrMalformed, err)
	}
	alerts = make([]Alert, 0, len(raws))
	for _, r := range raws {
		a, err := DecodeAlert(r)
		if err != nil {
			dropped++
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, dropped, nil
}
