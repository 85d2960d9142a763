package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/index"
)

type fakeGitHub struct {
	mu      sync.Mutex
	repos   map[string]*RepositoryData
	fail    map[string]error
	tokens  []string
	active  int
	maxSeen int
	delay   time.Duration
	// onCall, when set, runs before a repository is served; a non nil
	// error is returned instead of the repository.
	onCall func(ctx context.Context, repoURL string) error
}

func (f *fakeGitHub) Repository(ctx context.Context, token, repoURL string) (*RepositoryData, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.active++
	f.maxSeen = max(f.maxSeen, f.active)
	data, err := f.repos[repoURL], f.fail[repoURL]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.onCall != nil {
		if err := f.onCall(ctx, repoURL); err != nil {
			return nil, err
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, core.ErrNotFound
	}
	copied := *data
	copied.Issues = append([]core.Issue(nil), data.Issues...)
	return &copied, nil
}

func (f *fakeGitHub) RateLimit(context.Context, string) (RateLimit, error) {
	return RateLimit{Limit: 5000, Remaining: 4999}, nil
}

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	if err := idx.AddProject(context.Background(), core.Project{Name: "proj", Foundation: "cncf"}); err != nil {
		t.Fatal(err)
	}
	return idx
}

func addRepo(t *testing.T, idx *index.Index, url string) core.Repository {
	t.Helper()
	repo, err := idx.AddRepository(context.Background(), "proj", url)
	if err != nil {
		t.Fatal(err)
	}
	return repo
}

func ghIssue(id int64, title string, labels ...string) core.Issue {
	return core.Issue{
		ID:          id,
		Number:      int(id),
		Title:       title,
		URL:         "https://github.com/o/r/issues/1",
		Labels:      labels,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewRequiresTokens(t *testing.T) {
	if _, err := New(nil, &fakeGitHub{}, Options{}); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("got %v, want ErrNoTokens", err)
	}
}

func TestRunSyncsIssues(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	repo := addRepo(t, idx, "o/r")

	gh := &fakeGitHub{repos: map[string]*RepositoryData{
		repo.URL: {
			Stars:     10,
			Topics:    []string{"k8s"},
			Languages: []string{"Go"},
			Issues: []core.Issue{
				ghIssue(1, "first", "good first issue"),
				ghIssue(2, "second", "help wanted"),
			},
		},
	}}
	tr, err := New(idx, gh, Options{Tokens: []string{"t1"}})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := tr.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Registered != 2 || stats.Updated != 1 || stats.Unregistered != 0 {
		t.Errorf("stats = %+v", stats)
	}

	// Nothing changed on GitHub: nothing is written.
	stats, err = tr.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Registered != 0 || stats.Updated != 0 || stats.Unregistered != 0 {
		t.Errorf("second run stats = %+v", stats)
	}

	// One issue closed, one retitled, one opened.
	gh.mu.Lock()
	gh.repos[repo.URL].Issues = []core.Issue{
		ghIssue(2, "second, retitled", "help wanted"),
		ghIssue(3, "third", "good first issue"),
	}
	gh.mu.Unlock()

	stats, err = tr.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Registered != 2 || stats.Unregistered != 1 {
		t.Errorf("third run stats = %+v", stats)
	}

	issues, err := idx.RepositoryIssues(ctx, repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 2 || issues[0].Title != "second, retitled" || issues[1].ID != 3 {
		t.Errorf("issues = %+v", issues)
	}

	repos, err := idx.RepositoriesToTrack(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if repos[0].Stars != 10 || repos[0].Digest == "" {
		t.Errorf("repository = %+v", repos[0])
	}
}

func TestRunJoinsErrors(t *testing.T) {
	idx := newIndex(t)
	ok := addRepo(t, idx, "o/ok")
	bad := addRepo(t, idx, "o/bad")
	missing := addRepo(t, idx, "o/missing")

	gh := &fakeGitHub{
		repos: map[string]*RepositoryData{ok.URL: {Issues: []core.Issue{ghIssue(1, "x")}}},
		fail:  map[string]error{bad.URL: errors.New("boom")},
	}
	tr, err := New(idx, gh, Options{Tokens: []string{"t1"}, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := tr.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("joined error lost the cause: %v", err)
	}
	for _, url := range []string{bad.URL, missing.URL} {
		if !strings.Contains(err.Error(), url) {
			t.Errorf("error does not name %s: %v", url, err)
		}
	}
	if stats.Failed != 2 || stats.Registered != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunCancelledKeepsErrors(t *testing.T) {
	idx := newIndex(t)
	bad := addRepo(t, idx, "o/a-bad")
	interrupted := addRepo(t, idx, "o/b-interrupted")
	addRepo(t, idx, "o/c-never")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gh := &fakeGitHub{
		repos: map[string]*RepositoryData{},
		fail:  map[string]error{bad.URL: errors.New("boom")},
		onCall: func(ctx context.Context, repoURL string) error {
			if repoURL != interrupted.URL {
				return nil
			}
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	tr, err := New(idx, gh, Options{Tokens: []string{"t1"}, Concurrency: 1})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := tr.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want a cancellation error", err)
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), bad.URL) {
		t.Errorf("error lost the failure of %s: %v", bad.URL, err)
	}
	if stats.Failed < 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunBoundsConcurrencyAndRotatesTokens(t *testing.T) {
	idx := newIndex(t)
	gh := &fakeGitHub{repos: map[string]*RepositoryData{}, delay: 20 * time.Millisecond}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		repo := addRepo(t, idx, "o/"+name)
		gh.repos[repo.URL] = &RepositoryData{}
	}

	tr, err := New(idx, gh, Options{Tokens: []string{"t1", "t2", "t3"}, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	gh.mu.Lock()
	defer gh.mu.Unlock()
	if gh.maxSeen > 2 {
		t.Errorf("%d repositories tracked at once, want at most 2", gh.maxSeen)
	}
	if len(gh.tokens) != 6 {
		t.Errorf("got %d GitHub calls", len(gh.tokens))
	}
	used := map[string]bool{}
	for _, tok := range gh.tokens {
		used[tok] = true
	}
	if len(used) < 2 {
		t.Errorf("tokens used = %v", used)
	}
}

func TestRepositoryTimeout(t *testing.T) {
	idx := newIndex(t)
	repo := addRepo(t, idx, "o/slow")
	gh := &fakeGitHub{repos: map[string]*RepositoryData{repo.URL: {}}, delay: time.Second}

	tr, err := New(idx, gh, Options{Tokens: []string{"t"}, RepositoryTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want a deadline error", err)
	}
}

func TestDigests(t *testing.T) {
	a := IssueDigest(core.Issue{Title: "x", Labels: []string{"help wanted"}})
	b := IssueDigest(core.Issue{Title: "x", Labels: []string{"help wanted"}, Number: 7})
	c := IssueDigest(core.Issue{Title: "y", Labels: []string{"help wanted"}})
	if a != b {
		t.Error("issue digest depends on fields that are not indexed")
	}
	if a == c || len(a) != 64 {
		t.Errorf("unexpected digests %q %q", a, c)
	}

	r1 := RepositoryDigest(core.Repository{Stars: 1, Topics: []string{"a"}})
	r2 := RepositoryDigest(core.Repository{Stars: 2, Topics: []string{"a"}})
	if r1 == r2 {
		t.Error("repository digest ignores stars")
	}
}

func TestSortLanguages(t *testing.T) {
	got := sortLanguages(map[string]int{"Shell": 10, "Go": 1000, "Makefile": 10})
	want := []string{"Go", "Makefile", "Shell"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}
