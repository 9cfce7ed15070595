package compute

import (
	"time"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Freshness boundaries.
const (
	LiveFor    = 5 * time.Minute
	PendingFor = 6 * time.Minute
)

// ClassifyFreshness maps the age of the last observed sample to a state.
// A zero last timestamp means nothing was ever observed.
func ClassifyFreshness(last, now time.Time) types.Freshness {
	if last.IsZero() {
		return types.Stale
	}
	age := now.Sub(last)
	switch {
	case age < LiveFor:
		return types.Live
	case age < PendingFor:
		return types.Pending
	default:
		return types.Stale
	}
}
