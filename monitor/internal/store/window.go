package store

import (
	"sort"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

// DefaultWindowCap is the number of samples retained during live operation.
const DefaultWindowCap = 500

// Window is a bounded, time-ordered sequence of samples. After every
// mutation its length is ≤ cap and timestamps are non-decreasing.
type Window struct {
	cap     int
	samples []types.Sample
}

// NewWindow creates an empty Window that retains at most capacity samples.
// A non-positive capacity selects DefaultWindowCap.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCap
	}
	return &Window{cap: capacity, samples: make([]types.Sample, 0, capacity)}
}

// Seed replaces the contents with history sorted ascending by timestamp.
// Samples already in the window that are newer than the newest history
// sample arrived on the live stream before history did; they are kept.
func (w *Window) Seed(history []types.Sample) {
	next := make([]types.Sample, len(history))
	copy(next, history)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Timestamp.Before(next[j].Timestamp)
	})

	if len(next) > 0 {
		newest := next[len(next)-1].Timestamp
		for _, s := range w.samples {
			if s.Timestamp.After(newest) {
				next = append(next, s)
			}
		}
	} else {
		next = append(next, w.samples...)
	}

	w.samples = next
	w.trim()
}

// Append adds s at the end and drops the oldest samples beyond cap.
//
// Live samples are expected in non-decreasing order. A sample older than the
// current tail is inserted at its sorted position instead, and Append
// returns false so the caller can report the out-of-order delivery.
func (w *Window) Append(s types.Sample) (inOrder bool) {
	n := len(w.samples)
	if n == 0 || !s.Timestamp.Before(w.samples[n-1].Timestamp) {
		w.samples = append(w.samples, s)
		w.trim()
		return true
	}

	idx := sort.Search(n, func(i int) bool {
		return w.samples[i].Timestamp.After(s.Timestamp)
	})
	w.samples = append(w.samples, types.Sample{})
	copy(w.samples[idx+1:], w.samples[idx:])
	w.samples[idx] = s
	w.trim()
	return false
}

// Latest returns the newest sample, or false if the window is empty.
func (w *Window) Latest() (types.Sample, bool) {
	if len(w.samples) == 0 {
		return types.Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// Samples returns a copy of the window, oldest first.
func (w *Window) Samples() []types.Sample {
	out := make([]types.Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Len returns the number of samples held.
func (w *Window) Len() int { return len(w.samples) }

// Cap returns the retention limit.
func (w *Window) Cap() int { return w.cap }

// trim drops samples from the front until len ≤ cap.
func (w *Window) trim() {
	over := len(w.samples) - w.cap
	if over <= 0 {
		return
	}
	n := copy(w.samples, w.samples[over:])
	w.samples = w.samples[:n]
}
