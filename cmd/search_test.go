package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cloradar/cloradar/pkg/config"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/index"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/urlstate"
)

func TestRunSearch(t *testing.T) {
	searcher := &fakeSearcher{total: 45}
	opts := searchOptions{
		state: urlstate.SearchFilters{
			PageNumber: 2,
			Text:       urlstate.Text("k8s"),
			Filters:    core.Filters{core.FilterMaturity: {"graduated"}},
		},
		sort:  "most_recent",
		limit: 40,
	}

	var out bytes.Buffer
	if err := runSearch(context.Background(), &out, searcher, prefs.Default(), opts); err != nil {
		t.Fatalf("runSearch: %v", err)
	}

	calls := searcher.calls()
	if len(calls) != 1 {
		t.Fatalf("%d searches, want 1", len(calls))
	}
	q := calls[0]
	if q.TextValue() != "k8s" || q.Offset != 40 || q.Limit != 40 || q.SortBy != core.SortMostRecent {
		t.Errorf("query = %+v", q)
	}

	got := out.String()
	for _, want := range []string{"45 results", "page 2 of 2", "/search?maturity=graduated&page=2&ts_query_web=k8s"} {
		if !strings.Contains(got, want) {
			t.Errorf("output misses %q:\n%s", want, got)
		}
	}
}

func TestRunSearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		opts     searchOptions
	}{
		{name: "unknown sort", searcher: &fakeSearcher{}, opts: searchOptions{sort: "stars"}},
		{name: "unsupported limit", searcher: &fakeSearcher{}, opts: searchOptions{limit: 15}},
		{name: "backend failure", searcher: &fakeSearcher{err: core.ErrOther}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runSearch(context.Background(), &out, tt.searcher, prefs.Default(), tt.opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRunBrowse(t *testing.T) {
	searcher := &fakeSearcher{total: 100}
	store := prefs.NewStore(&prefs.MemoryBackend{})
	in := strings.NewReader("q kubernetes\nf maturity graduated\nnext\nback\nlimit 15\nurl\nquit\n")

	var out bytes.Buffer
	if err := runBrowse(context.Background(), in, &out, searcher, store); err != nil {
		t.Fatalf("runBrowse: %v", err)
	}

	calls := searcher.calls()
	last := calls[len(calls)-1]
	if last.TextValue() != "kubernetes" || last.Offset != 0 {
		t.Errorf("last query = %+v", last)
	}
	if !slices.Equal(last.Filters[core.FilterMaturity], []string{"graduated"}) {
		t.Errorf("last filters = %v", last.Filters)
	}
	if !slices.ContainsFunc(calls, func(q core.SearchQuery) bool { return q.Offset == prefs.DefaultLimit }) {
		t.Errorf("next never searched the second page: %+v", calls)
	}

	got := out.String()
	if !strings.Contains(got, "usage: limit") {
		t.Errorf("invalid limit not reported:\n%s", got)
	}
	if !strings.Contains(got, "/search?maturity=graduated&ts_query_web=kubernetes") {
		t.Errorf("url not printed:\n%s", got)
	}
	if store.Get().Search.Limit != prefs.DefaultLimit {
		t.Errorf("limit = %d", store.Get().Search.Limit)
	}
}

func TestSetPreferences(t *testing.T) {
	store := prefs.NewStore(&prefs.MemoryBackend{})

	var out bytes.Buffer
	if err := setPreferences(&out, store, 60, "most_recent", "dark"); err != nil {
		t.Fatalf("setPreferences: %v", err)
	}
	p := store.Get()
	if p.Search.Limit != 60 || p.Search.Sort.By != core.SortMostRecent || p.Theme.Configured != prefs.ThemeDark {
		t.Errorf("preferences = %+v", p)
	}

	tests := []struct {
		name  string
		limit int
		sort  string
		theme string
	}{
		{name: "nothing to set"},
		{name: "limit", limit: 30},
		{name: "sort", sort: "stars"},
		{name: "theme", theme: "neon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := setPreferences(&out, store, tt.limit, tt.sort, tt.theme); err == nil {
				t.Error("expected an error")
			}
			if store.Get() != p {
				t.Errorf("preferences changed to %+v", store.Get())
			}
		})
	}
}

func TestRegisterProjects(t *testing.T) {
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	projects := []config.ProjectConfig{
		{
			Name:         "kubernetes",
			Foundation:   "cncf",
			Maturity:     "graduated",
			Repositories: []string{"https://github.com/kubernetes/kubernetes", "https://github.com/kubernetes/kubectl"},
		},
	}
	ctx := context.Background()
	for range 2 {
		if err := registerProjects(ctx, idx, projects); err != nil {
			t.Fatalf("registerProjects: %v", err)
		}
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Projects != 1 || stats.Repositories != 2 {
		t.Errorf("stats = %+v", stats)
	}

	bad := []config.ProjectConfig{{Name: "x", Foundation: "cncf", Repositories: []string{"not a url"}}}
	if err := registerProjects(ctx, idx, bad); err == nil {
		t.Error("expected an error for a malformed repository URL")
	}
}
