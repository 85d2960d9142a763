package controller

import "sync"

// Navigation is a change of the address the search view shows.
type Navigation struct {
	RawQuery string

	// ResetScroll asks for the results to be shown from the top. Entries
	// keep the flag, so going back to them resets again.
	ResetScroll bool

	Kind NavigationKind
}

type NavigationKind int

const (
	Push NavigationKind = iota
	Back
	Forward
)

// Navigator changes the current address. Implementations report the
// change back to the controller, which closes the loop.
type Navigator interface {
	Navigate(nav Navigation)
}

const maxHistoryEntries = 100

// History is an in-memory browser-like history. OnChange is called
// synchronously for every navigation, including Back and Forward.
type History struct {
	mu       sync.Mutex
	entries  []Navigation
	index    int
	OnChange func(Navigation)
}

// NewHistory creates a history positioned at rawQuery. The initial entry
// is not reported to OnChange.
func NewHistory(rawQuery string) *History {
	return &History{entries: []Navigation{{RawQuery: rawQuery}}}
}

// Navigate pushes nav, dropping any forward entries.
func (h *History) Navigate(nav Navigation) {
	nav.Kind = Push
	h.mu.Lock()
	h.entries = append(h.entries[:h.index+1], nav)
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}
	h.index = len(h.entries) - 1
	h.mu.Unlock()
	h.notify(nav)
}

// Back moves to the previous entry. It returns false at the start.
func (h *History) Back() bool {
	return h.move(-1, Back)
}

// Forward moves to the next entry. It returns false at the end.
func (h *History) Forward() bool {
	return h.move(1, Forward)
}

// Current returns the query of the current entry.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index].RawQuery
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) move(delta int, kind NavigationKind) bool {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.index = next
	nav := h.entries[next]
	h.mu.Unlock()

	nav.Kind = kind
	h.notify(nav)
	return true
}

func (h *History) notify(nav Navigation) {
	if h.OnChange != nil {
		h.OnChange(nav)
	}
}
