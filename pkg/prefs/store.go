package prefs

import (
	"fmt"
	"sync"

	"github.com/cloradar/cloradar/pkg/log"
)

// Backend persists the preferences document.
type Backend interface {
	// Load returns the stored preferences, or found=false if nothing was
	// stored yet.
	Load() (p Preferences, found bool, err error)
	Save(p Preferences) error
}

// Change is delivered to subscribers after every successful update.
type Change struct {
	Old Preferences
	New Preferences
	// Version increases with every committed update.
	Version uint64
}

// Store owns the preferences and their persistence.
type Store struct {
	// notifyMu is held from commit through fan-out so that subscribers
	// see changes in commit order. It is taken before mu.
	notifyMu    sync.Mutex
	mu          sync.Mutex
	version     uint64
	current     Preferences
	backend     Backend
	subscribers map[int]func(Change)
	nextID      int
	logger      *log.Logger
}

// NewStore loads the preferences from backend. Unreadable stored
// preferences are replaced with defaults.
func NewStore(backend Backend) *Store {
	s := &Store{
		current:     Default(),
		backend:     backend,
		subscribers: make(map[int]func(Change)),
		logger:      log.ForService("prefs"),
	}

	p, found, err := backend.Load()
	switch {
	case err != nil:
		s.logger.Warnf("loading preferences, using defaults: %v", err)
	case found:
		s.current = p.Normalize()
	}
	return s
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn to the current preferences, persists the result and
// notifies subscribers. Subscribers are not called if nothing changed or
// persistence failed; on failure the in-memory value is left untouched.
// Subscribers must not call Update.
func (s *Store) Update(fn func(Preferences) Preferences) (Preferences, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	old := s.current
	next := fn(old).Normalize()
	if next == old {
		s.mu.Unlock()
		return next, nil
	}
	if err := s.backend.Save(next); err != nil {
		s.mu.Unlock()
		return old, fmt.Errorf("saving preferences: %w", err)
	}
	s.current = next
	s.version++
	version := s.version
	subs := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debugf("preferences updated: %+v", next)
	change := Change{Old: old, New: next, Version: version}
	for _, fn := range subs {
		fn(change)
	}
	return next, nil
}

// Subscribe registers fn to be called after each change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// MemoryBackend keeps preferences in memory.
type MemoryBackend struct {
	mu    sync.Mutex
	prefs *Preferences
	Saves int
}

func (m *MemoryBackend) Load() (Preferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs == nil {
		return Preferences{}, false, nil
	}
	return *m.prefs, true, nil
}

func (m *MemoryBackend) Save(p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &p
	m.Saves++
	return nil
}
