package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// protonMassFactor converts n[cm^-3] * v[km/s]^2 into nPa.
const protonMassFactor = 1.6726e-6

// Sample is one solar-wind measurement plus its derived dynamic pressure.
// DynamicPressure is computed once, at decode time.
type Sample struct {
	Timestamp       time.Time `json:"time_tag"`
	Speed           float64   `json:"speed"`
	Density         float64   `json:"density"`
	Bz              float64   `json:"bz"`
	DynamicPressure float64   `json:"dynamic_pressure"`
}

// NewSample builds a Sample and derives its dynamic pressure.
func NewSample(ts time.Time, speed, density, bz float64) Sample {
	return Sample{
		Timestamp:       ts,
		Speed:           speed,
		Density:         density,
		Bz:              bz,
		DynamicPressure: DynamicPressure(density, speed),
	}
}

// DynamicPressure returns 1.6726e-6 * density * speed^2 in nPa.
// NaN inputs are treated as absent and yield 0.
func DynamicPressure(density, speed float64) float64 {
	if math.IsNaN(density) || math.IsNaN(speed) {
		return 0
	}
	return protonMassFactor * density * speed * speed
}

// rawSample is the upstream wire record. Extra fields are ignored.
type rawSample struct {
	TimeTag string     `json:"time_tag"`
	Speed   looseFloat `json:"speed"`
	Density looseFloat `json:"density"`
	Bz      looseFloat `json:"bz"`
}

// DecodeSample parses one upstream record.
func DecodeSample(data []byte) (Sample, error) {
	var raw rawSample
	if err := json.Unmarshal(data, &raw); err != nil {
		return Sample{}, fmt.Errorf("%w: sample: %v", ErrMalformed, err)
	}
	ts, err := ParseTimestamp(raw.TimeTag)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: sample: %v", ErrMalformed, err)
	}
	return NewSample(ts, float64(raw.Speed), float64(raw.Density), float64(raw.Bz)), nil
}

// DecodeSamples parses a JSON array of upstream records. Records that fail
// to decode are skipped and counted in the returned dropped value.
func DecodeSamples(data []byte) (samples []Sample, dropped int, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, 0, fmt.Errorf("%w: sample list: %v", ErrMalformed, err)
	}
	samples = make([]Sample, 0, len(raws))
	for _, r := range raws {
		s, err := DecodeSample(r)
		if err != nil {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, dropped, nil
}

// looseFloat accepts a JSON number, a numeric string, or null. Anything else
// decodes as 0.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = 0
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = looseFloat(v)
	return nil
}
