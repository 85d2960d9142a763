package api

import (
	"time"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/urlstate"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// SearchResponse is one page of results together with the state that
// produced it.
type SearchResponse struct {
	Text       string       `json:"text,omitempty"`
	Filters    core.Filters `json:"filters"`
	SortBy     core.SortBy  `json:"sort_by"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
	Items      []core.Issue `json:"items"`
	URL        string       `json:"url"`
}

// ViewResponse mirrors a session's controller view.
type ViewResponse struct {
	State           string            `json:"state"`
	Loading         bool              `json:"loading"`
	Error           string            `json:"error,omitempty"`
	ScrollY         int               `json:"scroll_y"`
	NoResults       bool              `json:"no_results"`
	CanResetFilters bool              `json:"can_reset_filters"`
	Preferences     prefs.Preferences `json:"preferences"`
	Search          SearchResponse    `json:"search"`
	Requests        uint64            `json:"requests"`
	Stale           int               `json:"stale"`
}

type PreferencesRequest struct {
	Limit *int         `json:"limit,omitempty"`
	Sort  *core.SortBy `json:"sort,omitempty"`
	Theme *string      `json:"theme,omitempty"`
}

type ScrollRequest struct {
	Y int `json:"y"`
}

type StatsResponse struct {
	Projects     int `json:"projects"`
	Repositories int `json:"repositories"`
	Issues       int `json:"issues"`
}

// NewViewResponse converts a controller view.
func NewViewResponse(v controller.View) ViewResponse {
	return ViewResponse{
		State:           v.State.String(),
		Loading:         v.Loading,
		Error:           v.Error,
		ScrollY:         v.ScrollY,
		NoResults:       v.NoResults(),
		CanResetFilters: v.CanResetFilters(),
		Preferences:     v.Prefs,
		Search:          newSearchResponse(v.Filters, v.Query, v.Results),
		Requests:        v.Issued,
		Stale:           v.Stale,
	}
}

func newSearchResponse(f urlstate.SearchFilters, q core.SearchQuery, page *core.SearchResultPage) SearchResponse {
	resp := SearchResponse{
		Text:    f.TextValue(),
		Filters: f.Filters.Clone(),
		SortBy:  q.SortBy,
		Page:    max(f.PageNumber, 1),
		Limit:   q.Limit,
		Offset:  q.Offset,
		Items:   []core.Issue{},
		URL:     urlstate.Path("/search", f),
	}
	if page != nil {
		resp.Total = page.Total
		resp.Items = page.Items
	}
	resp.TotalPages = core.TotalPages(resp.Total, resp.Limit)
	return resp
}
