package tracker

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/index"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// TrackedLabels are the labels marking an issue as a contribution
// opportunity.
var TrackedLabels = []string{"good first issue", "help wanted"}

// RepositoryData is what the tracker needs to know about a repository on
// GitHub.
type RepositoryData struct {
	Stars     int
	Topics    []string
	Languages []string
	Issues    []core.Issue
}

// RateLimit is the remaining API quota of a token.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// GitHub fetches repository data with the given token.
type GitHub interface {
	Repository(ctx context.Context, token, repoURL string) (*RepositoryData, error)
	RateLimit(ctx context.Context, token string) (RateLimit, error)
}

// GitHubClient implements GitHub with the REST API.
type GitHubClient struct {
	mu      sync.Mutex
	clients map[string]*github.Client
}

func NewGitHubClient() *GitHubClient {
	return &GitHubClient{clients: make(map[string]*github.Client)}
}

func (g *GitHubClient) client(token string) *github.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[token]; ok {
		return c
	}
	var c *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		c = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		c = github.NewClient(nil)
	}
	g.clients[token] = c
	return c
}

func (g *GitHubClient) Repository(ctx context.Context, token, repoURL string) (*RepositoryData, error) {
	owner, name, err := index.ParseRepositoryURL(repoURL)
	if err != nil {
		return nil, err
	}
	client := g.client(token)

	repo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}

	languages, _, err := client.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetching languages of %s/%s: %w", owner, name, err)
	}

	data := &RepositoryData{
		Stars:     repo.GetStargazersCount(),
		Topics:    repo.Topics,
		Languages: sortLanguages(languages),
	}

	seen := make(map[int64]bool)
	for _, label := range TrackedLabels {
		issues, err := listIssues(ctx, client, owner, name, label)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			if issue.IsPullRequest() || seen[issue.GetID()] {
				continue
			}
			seen[issue.GetID()] = true
			data.Issues = append(data.Issues, convertIssue(issue))
		}
	}

	return data, nil
}

func (g *GitHubClient) RateLimit(ctx context.Context, token string) (RateLimit, error) {
	limits, _, err := g.client(token).RateLimit.Get(ctx)
	if err != nil {
		return RateLimit{}, fmt.Errorf("fetching rate limit: %w", err)
	}
	rate := limits.GetCore()
	if rate == nil {
		return RateLimit{}, fmt.Errorf("fetching rate limit: no core quota in response")
	}
	return RateLimit{
		Limit:     rate.Limit,
		Remaining: rate.Remaining,
		Reset:     rate.Reset.Time,
	}, nil
}

func listIssues(ctx context.Context, client *github.Client, owner, name, label string) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{label},
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []*github.Issue
	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing %q issues of %s/%s: %w", label, owner, name, err)
		}
		all = append(all, issues...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func convertIssue(issue *github.Issue) core.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	slices.Sort(labels)

	return core.Issue{
		ID:          issue.GetID(),
		Title:       issue.GetTitle(),
		URL:         issue.GetHTMLURL(),
		Number:      issue.GetNumber(),
		Labels:      labels,
		PublishedAt: issue.GetCreatedAt().Time.UTC(),
	}
}

// sortLanguages orders languages by the amount of code, largest first.
func sortLanguages(bytes map[string]int) []string {
	languages := make([]string, 0, len(bytes))
	for lang := range bytes {
		languages = append(languages, lang)
	}
	slices.SortFunc(languages, func(a, b string) int {
		if c := cmp.Compare(bytes[b], bytes[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return languages
}
