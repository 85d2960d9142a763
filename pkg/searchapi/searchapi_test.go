package searchapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/klauspost/compress/gzhttp"
)

func text(s string) *string { return &s }

func TestParams(t *testing.T) {
	q := core.SearchQuery{
		Text:    text("kubernetes"),
		Filters: core.Filters{core.FilterMaturity: {"graduated"}, core.FilterFoundation: {"cncf", "lfaidata"}},
		SortBy:  core.SortRelevance,
		Limit:   20,
		Offset:  20,
	}
	got := Params(q)

	expected := map[string]string{
		"ts_query_web":  "kubernetes",
		"maturity[0]":   "graduated",
		"foundation[0]": "cncf",
		"foundation[1]": "lfaidata",
		"offset":        "20",
		"limit":         "20",
		"sort_by":       "relevance",
	}
	for k, v := range expected {
		if got.Get(k) != v {
			t.Errorf("param %s = %q, want %q", k, got.Get(k), v)
		}
	}
	if len(got) != len(expected) {
		t.Errorf("unexpected extra params: %v", got)
	}
}

func TestParamsOmitsBlankText(t *testing.T) {
	got := Params(core.SearchQuery{Text: text("  "), Limit: 20})
	if got.Has("ts_query_web") {
		t.Fatalf("expected blank text to be omitted, got %v", got)
	}
	if got.Get("sort_by") != string(core.DefaultSortBy) {
		t.Fatalf("expected default sort, got %q", got.Get("sort_by"))
	}
}

const body = `[{
	"issue_id": 42,
	"title": "Add docs for helm values",
	"url": "https://github.com/org/repo/issues/7",
	"number": 7,
	"labels": ["good first issue", "docs"],
	"published_at": 1700000000,
	"project": {"name": "helm", "display_name": "Helm", "foundation": "cncf", "maturity": "graduated"},
	"repository": {"name": "repo", "url": "https://github.com/org/repo", "stars": 100, "languages": ["Go"]}
}]`

func TestSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/issues/search" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Pagination-Total-Count", "57")
		w.Write([]byte(body))
	})))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithTimeout(5*time.Second))
	page, err := c.Search(context.Background(), core.SearchQuery{Limit: 20, Offset: 40, SortBy: core.SortMostRecent})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if !strings.Contains(gotQuery, "offset=40") || !strings.Contains(gotQuery, "sort_by=most_recent") {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if page.Total != 57 {
		t.Errorf("expected total 57, got %d", page.Total)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	issue := page.Items[0]
	if issue.ID != 42 || issue.Project.Title() != "Helm" || issue.Repository.Stars != 100 {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if !issue.PublishedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected published_at %v", issue.PublishedAt)
	}
}

func TestSearchWithoutTotalHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL).Search(context.Background(), core.SearchQuery{Limit: 20})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header string
		body   string
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: core.ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", want: core.ErrOther},
		{name: "bad total", status: http.StatusOK, header: "many", body: "[]", want: core.ErrOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Pagination-Total-Count", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Search(context.Background(), core.SearchQuery{Limit: 20})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSearchInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"oops"`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Search(context.Background(), core.SearchQuery{Limit: 20}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSearchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url).Search(context.Background(), core.SearchQuery{Limit: 20}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSwitch(t *testing.T) {
	sw := &Switch{}
	if _, err := sw.Search(context.Background(), core.SearchQuery{}); !errors.Is(err, ErrNoSearcher) {
		t.Fatalf("empty switch: got %v", err)
	}

	answer := func(total int) Searcher {
		return SearcherFunc(func(context.Context, core.SearchQuery) (*core.SearchResultPage, error) {
			return &core.SearchResultPage{Total: total}, nil
		})
	}

	sw.Set(answer(1))
	page, err := sw.Search(context.Background(), core.SearchQuery{})
	if err != nil || page.Total != 1 {
		t.Fatalf("got %v, %v", page, err)
	}

	sw.Set(answer(2))
	page, err = sw.Search(context.Background(), core.SearchQuery{})
	if err != nil || page.Total != 2 {
		t.Fatalf("after Set: got %v, %v", page, err)
	}
}
