// Package tracker keeps the local index in sync with GitHub.
//
// Every registered repository is visited with a bounded number of workers,
// each borrowing a token from a shared pool. Repository metadata is only
// written when its digest changes, and issues are registered, updated or
// unregistered by comparing digests with what the index holds.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/log"
)

const (
	DefaultConcurrency       = 4
	DefaultRepositoryTimeout = 300 * time.Second
)

// ErrNoTokens is returned when the tracker is configured without any
// GitHub token.
var ErrNoTokens = errors.New("no GitHub tokens configured (tracker.github_tokens)")

// Store is the part of the index the tracker writes to.
type Store interface {
	RepositoriesToTrack(ctx context.Context) ([]core.Repository, error)
	UpdateRepositoryGitHubData(ctx context.Context, repo core.Repository) error
	RepositoryIssues(ctx context.Context, repositoryID string) ([]core.Issue, error)
	RegisterIssue(ctx context.Context, repositoryID string, issue core.Issue) error
	UnregisterIssue(ctx context.Context, issueID int64) error
	UpdateRepositoryLastTrackTS(ctx context.Context, repositoryID string) error
}

type Options struct {
	Tokens            []string
	Concurrency       int
	RepositoryTimeout time.Duration
}

type Tracker struct {
	store  Store
	gh     GitHub
	opts   Options
	tokens chan string
	logger *log.Logger
}

// Stats summarizes one run.
type Stats struct {
	Repositories int
	Updated      int
	Registered   int
	Unregistered int
	Failed       int
}

func New(store Store, gh GitHub, opts Options) (*Tracker, error) {
	if len(opts.Tokens) == 0 {
		return nil, ErrNoTokens
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RepositoryTimeout <= 0 {
		opts.RepositoryTimeout = DefaultRepositoryTimeout
	}

	tokens := make(chan string, len(opts.Tokens))
	for _, t := range opts.Tokens {
		tokens <- t
	}

	return &Tracker{
		store:  store,
		gh:     gh,
		opts:   opts,
		tokens: tokens,
		logger: log.ForService("tracker"),
	}, nil
}

// Run tracks every repository once. Failures of individual repositories
// don't stop the others; they are joined into the returned error.
func (t *Tracker) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	t.logger.Debugf("getting repositories to track")
	repos, err := t.store.RepositoriesToTrack(ctx)
	if err != nil {
		return stats, err
	}
	if len(repos) == 0 {
		t.logger.Infof("no repositories to track")
		return stats, nil
	}
	stats.Repositories = len(repos)
	t.logger.Infof("tracking %d repositories", len(repos))

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, t.opts.Concurrency)

	for _, repo := range repos {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return stats, errors.Join(append(errs, ctx.Err())...)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := t.trackWithToken(ctx, repo)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				errs = append(errs, fmt.Errorf("tracking repository %s: %w", repo.URL, err))
				return
			}
			if result.updated {
				stats.Updated++
			}
			stats.Registered += result.registered
			stats.Unregistered += result.unregistered
		}()
	}
	wg.Wait()

	t.logRateLimits(ctx)
	t.logger.Infof("tracker finished: %d repositories, %d failed", stats.Repositories, stats.Failed)
	return stats, errors.Join(errs...)
}

type trackResult struct {
	updated      bool
	registered   int
	unregistered int
}

func (t *Tracker) trackWithToken(ctx context.Context, repo core.Repository) (trackResult, error) {
	var token string
	select {
	case token = <-t.tokens:
	case <-ctx.Done():
		return trackResult{}, ctx.Err()
	}
	defer func() { t.tokens <- token }()

	ctx, cancel := context.WithTimeout(ctx, t.opts.RepositoryTimeout)
	defer cancel()
	return t.trackRepository(ctx, token, repo)
}

func (t *Tracker) trackRepository(ctx context.Context, token string, repo core.Repository) (trackResult, error) {
	var result trackResult
	start := time.Now()
	t.logger.Debugf("%s: started", repo.URL)

	data, err := t.gh.Repository(ctx, token, repo.URL)
	if err != nil {
		return result, err
	}

	prev := repo.Digest
	repo.Stars = data.Stars
	repo.Topics = data.Topics
	repo.Languages = data.Languages
	repo.Digest = RepositoryDigest(repo)
	if repo.Digest != prev {
		if err := t.store.UpdateRepositoryGitHubData(ctx, repo); err != nil {
			return result, err
		}
		result.updated = true
		t.logger.Debugf("%s: github data updated in database", repo.URL)
	}

	inDB, err := t.store.RepositoryIssues(ctx, repo.ID)
	if err != nil {
		return result, err
	}
	known := make(map[int64]string, len(inDB))
	for _, issue := range inDB {
		known[issue.ID] = issue.Digest
	}

	current := make(map[int64]bool, len(data.Issues))
	for _, issue := range data.Issues {
		issue.Digest = IssueDigest(issue)
		current[issue.ID] = true
		if d, ok := known[issue.ID]; ok && d == issue.Digest {
			continue
		}
		if err := t.store.RegisterIssue(ctx, repo.ID, issue); err != nil {
			return result, err
		}
		result.registered++
		t.logger.Debugf("%s: registering issue #%d", repo.URL, issue.Number)
	}

	for _, issue := range inDB {
		if current[issue.ID] {
			continue
		}
		if err := t.store.UnregisterIssue(ctx, issue.ID); err != nil {
			return result, err
		}
		result.unregistered++
		t.logger.Debugf("%s: unregistering issue #%d", repo.URL, issue.Number)
	}

	if err := t.store.UpdateRepositoryLastTrackTS(ctx, repo.ID); err != nil {
		return result, err
	}

	t.logger.Debugf("%s: completed in %s", repo.URL, time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (t *Tracker) logRateLimits(ctx context.Context) {
	if !log.DebugEnabledFor("tracker") {
		return
	}
	for i, token := range t.opts.Tokens {
		rl, err := t.gh.RateLimit(ctx, token)
		if err != nil {
			t.logger.Debugf("token [%d]: %v", i, err)
			continue
		}
		t.logger.Debugf("token [%d] github rate limit: %d/%d, resets at %s",
			i, rl.Remaining, rl.Limit, rl.Reset.Format(time.RFC3339))
	}
}

// RepositoryDigest fingerprints the GitHub metadata of a repository.
func RepositoryDigest(repo core.Repository) string {
	return digest([]any{repo.Topics, repo.Languages, repo.Stars})
}

// IssueDigest fingerprints the fields of an issue that are indexed.
func IssueDigest(issue core.Issue) string {
	return digest([]any{issue.Title, issue.Labels})
}

func digest(v any) string {
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
