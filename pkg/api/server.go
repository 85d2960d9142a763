// Package api serves the JSON API of the web UI and owns the per-browser
// search sessions the HTML pages are rendered from.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cloradar/cloradar/pkg/index"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/realtime"
	"github.com/cloradar/cloradar/pkg/searchapi"
)

type Server struct {
	searcher searchapi.Searcher
	prefs    *prefs.Store
	sessions *Sessions
	hub      *realtime.Hub
	logger   *log.Logger

	indexMu sync.RWMutex
	index   *index.Index

	unsubscribe func()
}

// Option configures a Server.
type Option func(*Server)

// WithIndex exposes the statistics of the local index. A nil idx leaves
// them unavailable.
func WithIndex(idx *index.Index) Option {
	return func(s *Server) { s.index = idx }
}

// NewServer creates a server searching with searcher. Preference changes
// are pushed to connected browsers until Close is called.
func NewServer(searcher searchapi.Searcher, store *prefs.Store, opts ...Option) *Server {
	s := &Server{
		searcher: searcher,
		prefs:    store,
		sessions: NewSessions(searcher, store),
		hub:      realtime.NewHub(0),
		logger:   log.ForService("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = store.Subscribe(func(ch prefs.Change) {
		s.hub.Broadcast(realtime.Event{Type: realtime.TypePreferences, Data: ch.New})
	})
	return s
}

// SetIndex replaces the index statistics are served from. A nil idx makes
// them unavailable.
func (s *Server) SetIndex(idx *index.Index) {
	s.indexMu.Lock()
	s.index = idx
	s.indexMu.Unlock()
}

func (s *Server) localIndex() *index.Index {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.index
}

// Sessions returns the browser sessions.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Preferences returns the preferences store.
func (s *Server) Preferences() *prefs.Store {
	return s.prefs
}

// Hub returns the realtime hub browsers listen to.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// Run prunes idle sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, DefaultSessionTTL/6)
}

// Close stops every session and the preference subscription.
func (s *Server) Close() {
	s.unsubscribe()
	s.sessions.Close()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
