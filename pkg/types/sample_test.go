package types

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicPressure(t *testing.T) {
	tests := []struct {
		name           string
		density, speed float64
		want           float64
	}{
		{"quiet wind", 5, 300, 1.6726e-6 * 5 * 300 * 300},
		{"fast stream", 10, 500, 4.1815},
		{"zero density", 0, 800, 0},
		{"zero speed", 12, 0, 0},
		{"absent density", math.NaN(), 400, 0},
		{"absent speed", 3, math.NaN(), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DynamicPressure(tc.density, tc.speed)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}

func TestDecodeSample_NumericAndStringFields(t *testing.T) {
	s, err := DecodeSample([]byte(`{"time_tag":"2025-06-10T02:23:00+00:00","speed":"500","density":10,"bz":"-7.5","_id":"abc"}`))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 10, 2, 23, 0, 0, time.UTC), s.Timestamp)
	assert.Equal(t, 500.0, s.Speed)
	assert.Equal(t, 10.0, s.Density)
	assert.Equal(t, -7.5, s.Bz)
	assert.InDelta(t, 4.1815, s.DynamicPressure, 1e-9)
}

func TestDecodeSample_NonNumericBecomesZero(t *testing.T) {
	s, err := DecodeSample([]byte(`{"time_tag":"2025-06-10 02:23:00.000","speed":"n/a","density":null,"bz":{"x":1}}`))
	require.NoError(t, err)

	assert.Zero(t, s.Speed)
	assert.Zero(t, s.Density)
	assert.Zero(t, s.Bz)
	assert.Zero(t, s.DynamicPressure)
}

func TestDecodeSample_RejectsBadTimestamp(t *testing.T) {
	for _, body := range []string{
		`{"speed":400}`,
		`{"time_tag":"yesterday","speed":400}`,
		`not json`,
	} {
		_, err := DecodeSample([]byte(body))
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, ErrMalformed), body)
	}
}

func TestDecodeSamples_SkipsMalformed(t *testing.T) {
	samples, dropped, err := DecodeSamples([]byte(`[
		{"time_tag":"2025-06-10T02:25:00Z","speed":410},
		{"time_tag":"","speed":420},
		{"time_tag":"2025-06-10T02:24:00Z","speed":430}
	]`))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
	assert.Equal(t, 1, dropped)
}

func TestParseTimestamp_Layouts(t *testing.T) {
	want := time.Date(2025, 6, 10, 2, 23, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-06-10T02:23:00Z",
		"2025-06-10T02:23:00+00:00",
		"2025-06-10T04:23:00+02:00",
		"2025-06-10T02:23:00",
		"2025-06-10 02:23:00.000",
		"2025-06-10 02:23:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %v", in, got)
	}
}
