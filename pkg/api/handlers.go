package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"github.com/cloradar/cloradar/pkg/version"
)

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	})
}

// HandleSearch runs a single search for the URL state in the query string
// with the stored preferences, outside of any session.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	state := urlstate.Decode(r.URL.Query())
	q := controller.BuildQuery(state, s.prefs.Get().Search)

	page, err := s.searcher.Search(r.Context(), q)
	if err != nil {
		s.logger.Errorf("api search: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, "Search failed", core.SearchErrorMessage)
		return
	}

	s.writeJSON(w, http.StatusOK, newSearchResponse(state, q, page))
}

// HandleView returns the caller's session view. A query string, or a new
// session, navigates the session first.
func (s *Server) HandleView(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)

	if r.URL.RawQuery == "" && sess.Started() {
		s.writeJSON(w, http.StatusOK, NewViewResponse(sess.Controller().Snapshot()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultWaitTimeout)
	defer cancel()
	v, err := sess.Visit(ctx, urlstate.EncodeString(urlstate.Decode(r.URL.Query())))
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Search timed out", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, NewViewResponse(v))
}

// HandleScroll records the scroll position of the caller's current page.
func (s *Server) HandleScroll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Session not found", "No search session for this browser")
		return
	}

	var req ScrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	sess.Controller().ReportScroll(max(req.Y, 0))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.prefs.Get())
}

func (s *Server) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}

	updates, err := req.updates()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid preferences", err.Error())
		return
	}

	p, err := s.prefs.Update(func(p prefs.Preferences) prefs.Preferences {
		for _, fn := range updates {
			p = fn(p)
		}
		return p
	})
	if err != nil {
		s.logger.Errorf("updating preferences: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Saving preferences failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (req PreferencesRequest) updates() ([]func(prefs.Preferences) prefs.Preferences, error) {
	var fns []func(prefs.Preferences) prefs.Preferences
	if req.Limit != nil {
		if !slices.Contains(prefs.Limits, *req.Limit) {
			return nil, fmt.Errorf("limit must be one of %v", prefs.Limits)
		}
		fns = append(fns, prefs.WithLimit(*req.Limit))
	}
	if req.Sort != nil {
		by, ok := core.ParseSortBy(string(*req.Sort))
		if !ok {
			return nil, fmt.Errorf("sort must be one of %v", core.SortOptions)
		}
		fns = append(fns, prefs.WithSort(by))
	}
	if req.Theme != nil {
		if !slices.Contains(prefs.Themes, *req.Theme) {
			return nil, fmt.Errorf("theme must be one of %v", prefs.Themes)
		}
		fns = append(fns, prefs.WithTheme(*req.Theme))
	}
	return fns, nil
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	idx := s.localIndex()
	if idx == nil {
		s.writeError(w, http.StatusNotFound, "No local index", "The local search backend is not enabled")
		return
	}
	stats, err := idx.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Projects:     stats.Projects,
		Repositories: stats.Repositories,
		Issues:       stats.Issues,
	})
}
