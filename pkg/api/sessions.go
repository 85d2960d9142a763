package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"github.com/google/uuid"
)

const (
	SessionCookie      = "cloradar_session"
	DefaultSessionTTL  = 30 * time.Minute
	DefaultWaitTimeout = 30 * time.Second
)

// Session is the search view of one browser. It owns a controller and the
// history it navigates.
type Session struct {
	ID string

	ctrl    *controller.Controller
	history *controller.History
	cancel  context.CancelFunc

	// mu serializes requests of the same browser.
	mu       sync.Mutex
	started  bool
	lastSeen time.Time

	// fresh is set by Do: the view was just produced for the current
	// address, so the GET following the redirect shows it without
	// searching again.
	fresh bool
}

// Controller returns the session controller.
func (s *Session) Controller() *controller.Controller {
	return s.ctrl
}

// History returns the session history.
func (s *Session) History() *controller.History {
	return s.history
}

// Started reports whether the session navigated at least once.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Visit navigates the session to rawQuery and waits for the resulting
// search. Visiting the current address searches again without adding a
// history entry, unless Do just produced its view.
func (s *Session) Visit(ctx context.Context, rawQuery string) (controller.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visit(rawQuery)
	return s.ctrl.WaitIdle(ctx)
}

func (s *Session) visit(rawQuery string) {
	fresh := s.fresh
	s.fresh = false

	switch {
	case !s.started:
		s.started = true
		if s.history.Current() == rawQuery {
			s.ctrl.URLChanged(controller.Navigation{RawQuery: rawQuery})
			return
		}
		s.history.Navigate(controller.Navigation{RawQuery: rawQuery})
	case s.history.Current() == rawQuery:
		if fresh {
			return
		}
		s.ctrl.URLChanged(controller.Navigation{RawQuery: rawQuery})
	default:
		s.history.Navigate(controller.Navigation{RawQuery: rawQuery})
	}
}

// Do runs fn against the controller, after moving the session to
// rawQuery if it shows something else, and waits for the outcome.
func (s *Session) Do(ctx context.Context, rawQuery string, fn func(c *controller.Controller)) (controller.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.history.Current() != rawQuery {
		s.visit(rawQuery)
		if _, err := s.ctrl.WaitIdle(ctx); err != nil {
			return controller.View{}, err
		}
	}
	fn(s.ctrl)
	v, err := s.ctrl.WaitIdle(ctx)
	s.fresh = err == nil
	return v, err
}

// Sessions keeps one Session per browser, keyed by a cookie.
type Sessions struct {
	searcher searchapi.Searcher
	prefs    *prefs.Store
	ttl      time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	byID map[string]*Session
	now  func() time.Time
}

func NewSessions(searcher searchapi.Searcher, store *prefs.Store) *Sessions {
	return &Sessions{
		searcher: searcher,
		prefs:    store,
		ttl:      DefaultSessionTTL,
		logger:   log.ForService("sessions"),
		byID:     make(map[string]*Session),
		now:      time.Now,
	}
}

// Lookup returns the session named by the request cookie.
func (m *Sessions) Lookup(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[cookie.Value]
	if ok {
		s.lastSeen = m.now()
	}
	return s, ok
}

// Get returns the request's session, creating it and setting the cookie
// when there is none.
func (m *Sessions) Get(w http.ResponseWriter, r *http.Request) *Session {
	if s, ok := m.Lookup(r); ok {
		return s
	}

	s := m.create(urlstate.EncodeString(urlstate.Decode(r.URL.Query())))
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

func (m *Sessions) create(rawQuery string) *Session {
	ctrl, history := controller.NewWithHistory(m.searcher, m.prefs, rawQuery)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		ctrl:     ctrl,
		history:  history,
		cancel:   cancel,
		lastSeen: m.now(),
	}
	go func() {
		_ = ctrl.Run(ctx)
	}()

	m.mu.Lock()
	m.byID[s.ID] = s
	n := len(m.byID)
	m.mu.Unlock()

	m.logger.Debugf("session %s created (%d active)", s.ID, n)
	return s
}

// Len returns the number of live sessions.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Prune stops sessions not seen for longer than the TTL.
func (m *Sessions) Prune() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.byID {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(m.byID, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.stop()
		m.logger.Debugf("session %s expired", s.ID)
	}
	return len(stale)
}

// Run prunes idle sessions every interval until ctx is done, then stops
// every session.
func (m *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Prune()
		case <-ctx.Done():
			m.Close()
			return
		}
	}
}

// Close stops every session.
func (m *Sessions) Close() {
	m.mu.Lock()
	sessions := m.byID
	m.byID = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.stop()
	}
}

func (s *Session) stop() {
	s.cancel()
	s.ctrl.Close()
}
