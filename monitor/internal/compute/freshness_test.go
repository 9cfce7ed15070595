package compute

import (
	"testing"
	"time"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClassifyFreshness(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want types.Freshness
	}{
		{"just arrived", 0, types.Live},
		{"4:59", 4*time.Minute + 59*time.Second, types.Live},
		{"exactly 5:00", 5 * time.Minute, types.Pending},
		{"5:01", 5*time.Minute + time.Second, types.Pending},
		{"5:59", 5*time.Minute + 59*time.Second, types.Pending},
		{"exactly 6:00", 6 * time.Minute, types.Stale},
		{"6:01", 6*time.Minute + time.Second, types.Stale},
		{"an hour", time.Hour, types.Stale},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			last := baseTime.Add(-tc.age)
			if got := ClassifyFreshness(last, baseTime); got != tc.want {
				t.Errorf("ClassifyFreshness(age=%v) = %q, want %q", tc.age, got, tc.want)
			}
		})
	}
}

func TestClassifyFreshness_NeverObserved(t *testing.T) {
	if got := ClassifyFreshness(time.Time{}, baseTime); got != types.Stale {
		t.Errorf("zero timestamp: got %q, want STALE", got)
	}
}

// Clock skew puts the sample in the future; a negative age is still LIVE.
func TestClassifyFreshness_FutureSample(t *testing.T) {
	if got := ClassifyFreshness(baseTime.Add(time.Minute), baseTime); got != types.Live {
		t.Errorf("future sample: got %q, want LIVE", got)
	}
}
