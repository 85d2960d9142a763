package controller

import (
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/urlstate"
)

// State of the search view.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is a snapshot of everything needed to render the search page.
type View struct {
	State State

	// Filters is the state decoded from the current URL and RawQuery its
	// canonical encoding.
	Filters  urlstate.SearchFilters
	RawQuery string

	// Query is the last request issued.
	Query core.SearchQuery

	// Results is nil until a search succeeds and after a failure.
	Results *core.SearchResultPage

	// Error is the user facing failure message in the Failed state.
	Error string

	Loading bool
	ScrollY int

	Prefs prefs.Preferences

	// Issued is the sequence number of the latest request, Applied the
	// sequence of the request whose results are shown. Stale counts
	// responses discarded because a newer request had been issued.
	Issued  uint64
	Applied uint64
	Stale   int

	// Bookkeeping used by WaitIdle.
	Processed uint64
	Pending   uint64
	InFlight  int
}

// Items returns the issues shown, if any.
func (v View) Items() []core.Issue {
	if v.Results == nil {
		return nil
	}
	return v.Results.Items
}

// Total returns the number of matches, or 0 when no results are shown.
func (v View) Total() int {
	if v.Results == nil {
		return 0
	}
	return v.Results.Total
}

// NoResults reports whether a search completed without matches. The UI
// then offers to browse all issues.
func (v View) NoResults() bool {
	return v.State == Loaded && v.Total() == 0
}

// CanResetFilters reports whether an empty result page should offer to
// reset the active filters.
func (v View) CanResetFilters() bool {
	return v.NoResults() && !v.Filters.Filters.IsEmpty()
}

// TotalPages returns the number of result pages for the current limit.
func (v View) TotalPages() int {
	return core.TotalPages(v.Total(), v.Query.Limit)
}

// Idle reports whether no event is queued and no search is running.
func (v View) Idle() bool {
	return v.Pending == 0 && v.InFlight == 0
}
