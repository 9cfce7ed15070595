package store

import (
	"sort"
	"time"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Alert set defaults.
const (
	DefaultAlertCap    = 50
	DefaultAlertMaxAge = 5 * time.Minute
	DefaultFreshFor    = 10 * time.Second
)

// MergeResult describes what Merge did with an incoming alert.
type MergeResult struct {
	// Duplicate is true when an alert with the same identity key was
	// already present. The incoming copy replaces it at the front.
	Duplicate bool

	// Fresh is true when the alert was marked fresh. Alerts merged before
	// the initial history load completes are never marked.
	Fresh bool

	// Evicted is the number of entries dropped by the size cap.
	Evicted int
}

// AlertSet is a bounded, newest-first list of alerts with no two entries
// sharing an identity key. It also tracks transient fresh markers used to
// highlight newly arrived alerts.
type AlertSet struct {
	cap      int
	maxAge   time.Duration
	freshFor time.Duration

	alerts []types.Alert
	fresh  map[types.AlertKey]time.Time // key → marker deadline
	loaded bool
}

// NewAlertSet creates an empty AlertSet. Non-positive arguments select the
// package defaults.
func NewAlertSet(capacity int, maxAge, freshFor time.Duration) *AlertSet {
	if capacity <= 0 {
		capacity = DefaultAlertCap
	}
	if maxAge <= 0 {
		maxAge = DefaultAlertMaxAge
	}
	if freshFor <= 0 {
		freshFor = DefaultFreshFor
	}
	return &AlertSet{
		cap:      capacity,
		maxAge:   maxAge,
		freshFor: freshFor,
		fresh:    make(map[types.AlertKey]time.Time),
	}
}

// SeedHistory initialises the set from a historical fetch and marks the
// initial load complete. History keeps the order the upstream returned;
// alerts merged from the stream before history arrived stay in front.
// A failed fetch is seeded with nil so later merges can still be marked.
func (s *AlertSet) SeedHistory(history []types.Alert) {
	combined := make([]types.Alert, 0, len(s.alerts)+len(history))
	combined = append(combined, s.alerts...)
	combined = append(combined, history...)
	s.alerts, _ = s.unique(combined)
	s.loaded = true
}

// Loaded reports whether SeedHistory has run.
func (s *AlertSet) Loaded() bool { return s.loaded }

// Merge prepends a, removes duplicate identity keys keeping the first
// occurrence, and truncates to the cap. Once the initial load completed the
// alert's key is marked fresh until now+freshFor. A key that is still fresh
// keeps its original deadline.
func (s *AlertSet) Merge(a types.Alert, now time.Time) MergeResult {
	var res MergeResult
	key := a.Key()
	for _, existing := range s.alerts {
		if existing.Key() == key {
			res.Duplicate = true
			break
		}
	}

	working := make([]types.Alert, 0, len(s.alerts)+1)
	working = append(working, a)
	working = append(working, s.alerts...)
	s.alerts, res.Evicted = s.unique(working)

	if s.loaded {
		if deadline, ok := s.fresh[key]; !ok || !now.Before(deadline) {
			s.fresh[key] = now.Add(s.freshFor)
		}
		res.Fresh = true
	}
	return res
}

// Prune removes alerts older than maxAge relative to now and returns how
// many were removed. Their fresh markers go with them.
func (s *AlertSet) Prune(now time.Time) int {
	kept := s.alerts[:0]
	removed := 0
	for _, a := range s.alerts {
		if now.Sub(a.Timestamp) > s.maxAge {
			delete(s.fresh, a.Key())
			removed++
			continue
		}
		kept = append(kept, a)
	}
	// Zero the tail so dropped payload maps can be collected.
	for i := len(kept); i < len(s.alerts); i++ {
		s.alerts[i] = types.Alert{}
	}
	s.alerts = kept
	return removed
}

// Expire drops fresh markers whose deadline has passed and returns how many
// were dropped.
func (s *AlertSet) Expire(now time.Time) int {
	n := 0
	for k, deadline := range s.fresh {
		if !now.Before(deadline) {
			delete(s.fresh, k)
			n++
		}
	}
	return n
}

// IsFresh reports whether key carries an unexpired fresh marker.
func (s *AlertSet) IsFresh(key types.AlertKey, now time.Time) bool {
	deadline, ok := s.fresh[key]
	return ok && now.Before(deadline)
}

// FreshKeys returns the keys with unexpired markers, sorted for stable output.
func (s *AlertSet) FreshKeys(now time.Time) []types.AlertKey {
	out := make([]types.AlertKey, 0, len(s.fresh))
	for k, deadline := range s.fresh {
		if now.Before(deadline) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At != out[j].At {
			return out[i].At > out[j].At
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// NextExpiry returns the earliest pending fresh-marker deadline.
func (s *AlertSet) NextExpiry() (time.Time, bool) {
	var next time.Time
	for _, deadline := range s.fresh {
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	return next, !next.IsZero()
}

// List returns a copy of the alerts, newest first.
func (s *AlertSet) List() []types.Alert {
	out := make([]types.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Len returns the number of alerts held.
func (s *AlertSet) Len() int { return len(s.alerts) }

// unique removes repeated identity keys (first occurrence wins) and
// truncates to the cap. It returns the result and how many unique entries
// the cap dropped.
func (s *AlertSet) unique(in []types.Alert) ([]types.Alert, int) {
	seen := make(map[types.AlertKey]struct{}, len(in))
	out := make([]types.Alert, 0, min(len(in), s.cap))
	evicted := 0
	for _, a := range in {
		k := a.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if len(out) == s.cap {
			evicted++
			continue
		}
		out = append(out, a)
	}
	return out, evicted
}
