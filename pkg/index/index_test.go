package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func text(s string) *string { return &s }

// seed registers two projects with one repository each and a few issues.
func seed(t *testing.T, idx *Index) (k8s, argo core.Repository) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []core.Project{
		{Name: "kubernetes", DisplayName: "Kubernetes", Foundation: "cncf", Maturity: "graduated"},
		{Name: "argo", Foundation: "cncf", Maturity: "incubating"},
	} {
		if err := idx.AddProject(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	var err error
	k8s, err = idx.AddRepository(ctx, "kubernetes", "https://github.com/kubernetes/kubectl")
	if err != nil {
		t.Fatal(err)
	}
	argo, err = idx.AddRepository(ctx, "argo", "argoproj/argo-cd")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issues := []struct {
		repo  core.Repository
		issue core.Issue
	}{
		{k8s, core.Issue{ID: 1, Number: 10, Title: "Improve kubectl docs", Labels: []string{"good first issue"}, PublishedAt: base}},
		{k8s, core.Issue{ID: 2, Number: 11, Title: "Fix flaky test", Labels: []string{"help wanted"}, PublishedAt: base.Add(time.Hour)}},
		{argo, core.Issue{ID: 3, Number: 5, Title: "Docs: sync waves", Labels: []string{"good first issue"}, PublishedAt: base.Add(2 * time.Hour)}},
	}
	for _, it := range issues {
		it.issue.URL = it.repo.URL + "/issues/1"
		it.issue.Digest = "d"
		if err := idx.RegisterIssue(ctx, it.repo.ID, it.issue); err != nil {
			t.Fatal(err)
		}
	}
	return k8s, argo
}

func TestAddRepository(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.AddRepository(ctx, "missing", "kubernetes/kubectl"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown project: got %v", err)
	}

	if err := idx.AddProject(ctx, core.Project{Name: "kubernetes", Foundation: "cncf"}); err != nil {
		t.Fatal(err)
	}
	first, err := idx.AddRepository(ctx, "kubernetes", "https://github.com/kubernetes/kubectl.git")
	if err != nil {
		t.Fatal(err)
	}
	again, err := idx.AddRepository(ctx, "kubernetes", "kubernetes/kubectl")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" || first.ID != again.ID {
		t.Errorf("ids = %q, %q", first.ID, again.ID)
	}
	if first.URL != "https://github.com/kubernetes/kubectl" || first.Name != "kubectl" {
		t.Errorf("repository = %+v", first)
	}

	repos, err := idx.RepositoriesToTrack(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 {
		t.Errorf("got %d repositories", len(repos))
	}
}

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		input       string
		owner, name string
		wantErr     bool
	}{
		{input: "https://github.com/cncf/clotributor", owner: "cncf", name: "clotributor"},
		{input: "https://github.com/cncf/clotributor/", owner: "cncf", name: "clotributor"},
		{input: "cncf/clotributor", owner: "cncf", name: "clotributor"},
		{input: "https://gitlab.com/cncf/clotributor", wantErr: true},
		{input: "cncf", wantErr: true},
		{input: "https://github.com/cncf/clotributor/issues", wantErr: true},
	}
	for _, tt := range tests {
		owner, name, err := ParseRepositoryURL(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.input)
			}
			continue
		}
		if err != nil || owner != tt.owner || name != tt.name {
			t.Errorf("%q: got %q/%q, %v", tt.input, owner, name, err)
		}
	}
}

func TestRepositoryData(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	k8s, _ := seed(t, idx)

	k8s.Stars = 2500
	k8s.Topics = []string{"cli"}
	k8s.Languages = []string{"Go"}
	k8s.Digest = "abc"
	if err := idx.UpdateRepositoryGitHubData(ctx, k8s); err != nil {
		t.Fatal(err)
	}
	if err := idx.UpdateRepositoryLastTrackTS(ctx, k8s.ID); err != nil {
		t.Fatal(err)
	}

	repos, err := idx.RepositoriesToTrack(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repositories", len(repos))
	}
	// Never tracked repositories come first.
	if repos[0].Name != "argo-cd" {
		t.Errorf("first repository = %s", repos[0].Name)
	}
	got := repos[1]
	if got.Stars != 2500 || got.Digest != "abc" || len(got.Topics) != 1 || got.Languages[0] != "Go" {
		t.Errorf("repository = %+v", got)
	}

	if err := idx.UpdateRepositoryLastTrackTS(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown repository: got %v", err)
	}
}

func TestRegisterAndUnregisterIssues(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	k8s, _ := seed(t, idx)

	issues, err := idx.RepositoryIssues(ctx, k8s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 2 || issues[0].Number != 10 || issues[0].Digest != "d" {
		t.Fatalf("issues = %+v", issues)
	}

	updated := issues[0]
	updated.Title = "Rewrite kubectl reference"
	updated.Digest = "e"
	if err := idx.RegisterIssue(ctx, k8s.ID, updated); err != nil {
		t.Fatal(err)
	}
	page, err := idx.Search(ctx, core.SearchQuery{Text: text("reference"), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].ID != updated.ID {
		t.Errorf("updated issue not searchable: %+v", page)
	}
	page, err = idx.Search(ctx, core.SearchQuery{Text: text("improve"), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 {
		t.Errorf("old title still indexed: %+v", page.Items)
	}

	if err := idx.UnregisterIssue(ctx, updated.ID); err != nil {
		t.Fatal(err)
	}
	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{Projects: 2, Repositories: 2, Issues: 2}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	seed(t, idx)

	tests := []struct {
		name    string
		query   core.SearchQuery
		wantIDs []int64
		total   int
	}{
		{
			name:    "everything newest first",
			query:   core.SearchQuery{Limit: 20},
			wantIDs: []int64{3, 2, 1},
			total:   3,
		},
		{
			name:    "text matches titles",
			query:   core.SearchQuery{Text: text("docs"), Limit: 20, SortBy: core.SortMostRecent},
			wantIDs: []int64{3, 1},
			total:   2,
		},
		{
			name:    "text matches labels",
			query:   core.SearchQuery{Text: text("wanted"), Limit: 20},
			wantIDs: []int64{2},
			total:   1,
		},
		{
			name:    "every word must match",
			query:   core.SearchQuery{Text: text("docs kubectl"), Limit: 20},
			wantIDs: []int64{1},
			total:   1,
		},
		{
			name:    "fts syntax is quoted",
			query:   core.SearchQuery{Text: text(`docs" OR "x`), Limit: 20},
			wantIDs: nil,
			total:   0,
		},
		{
			name:    "maturity filter",
			query:   core.SearchQuery{Filters: core.Filters{core.FilterMaturity: {"graduated"}}, Limit: 20},
			wantIDs: []int64{2, 1},
			total:   2,
		},
		{
			name:    "values of a category are alternatives",
			query:   core.SearchQuery{Filters: core.Filters{core.FilterMaturity: {"graduated", "incubating"}}, Limit: 20},
			wantIDs: []int64{3, 2, 1},
			total:   3,
		},
		{
			name: "categories are combined",
			query: core.SearchQuery{Filters: core.Filters{
				core.FilterFoundation: {"cdf"},
				core.FilterMaturity:   {"graduated"},
			}, Limit: 20},
			wantIDs: nil,
			total:   0,
		},
		{
			name:    "offset and limit",
			query:   core.SearchQuery{Limit: 1, Offset: 1},
			wantIDs: []int64{2},
			total:   3,
		},
		{
			name:    "total survives an offset past the end",
			query:   core.SearchQuery{Limit: 10, Offset: 10},
			wantIDs: nil,
			total:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := idx.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if page.Total != tt.total {
				t.Errorf("total = %d, want %d", page.Total, tt.total)
			}
			var ids []int64
			for _, it := range page.Items {
				ids = append(ids, it.ID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
			}
			for n := range ids {
				if ids[n] != tt.wantIDs[n] {
					t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
				}
			}
		})
	}
}

func TestSearchFillsProjectAndRepository(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)

	page, err := idx.Search(context.Background(), core.SearchQuery{Text: text("kubectl"), Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("got %d items", len(page.Items))
	}
	it := page.Items[0]
	if it.Project.Title() != "Kubernetes" || it.Project.Maturity != "graduated" {
		t.Errorf("project = %+v", it.Project)
	}
	if it.Repository.Name != "kubectl" || it.Labels[0] != "good first issue" {
		t.Errorf("issue = %+v", it)
	}
	if !it.PublishedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("published at = %v", it.PublishedAt)
	}
}
