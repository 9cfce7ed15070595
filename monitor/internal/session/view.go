package session

import (
	"time"

	"github.com/obsidianstack/spacewatch/pkg/types"
)

// View is an immutable snapshot of session state. Slices are owned by the
// View and must not be modified by readers.
type View struct {
	// Latest is the newest sample, nil while the window is empty.
	Latest *types.Sample
	// Bands classifies Latest, nil while the window is empty.
	Bands *types.Bands

	// Window is every retained sample, oldest first.
	Window []types.Sample

	SampleState  types.ConnState
	AlertState   types.ConnState
	Freshness    types.Freshness
	LastObserved time.Time

	// Alerts is the deduplicated alert list, newest first.
	Alerts []AlertView

	SamplesLoaded bool
	AlertsLoaded  bool

	PublishedAt time.Time
}

// AlertView is an alert plus its fresh marker.
type AlertView struct {
	types.Alert
	Fresh bool
}

// FreshCount returns how many alerts carry a fresh marker.
func (v *View) FreshCount() int {
	n := 0
	for _, a := range v.Alerts {
		if a.Fresh {
			n++
		}
	}
	return n
}

// publish builds a View from loop-owned state and stores it.
func (s *Session) publish() {
	now := s.clock.Now()
	v := &View{
		Window:        s.window.Samples(),
		SampleState:   s.sampleState,
		AlertState:    s.feed.State(),
		Freshness:     s.freshness,
		LastObserved:  s.lastObserved,
		SamplesLoaded: s.samplesLoaded,
		AlertsLoaded:  s.alerts.Loaded(),
		PublishedAt:   now,
	}
	if latest, ok := s.window.Latest(); ok {
		bands := s.thresholds.Bands(latest)
		v.Latest = &latest
		v.Bands = &bands
	}

	list := s.alerts.List()
	v.Alerts = make([]AlertView, len(list))
	for i, a := range list {
		v.Alerts[i] = AlertView{Alert: a, Fresh: s.alerts.IsFresh(a.Key(), now)}
	}

	s.view.Store(v)
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
