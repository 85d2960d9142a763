// Package index is the local issues index filled by the tracker: projects,
// the repositories followed for them and the open issues found there.
//
// The index doubles as a search backend. Search answers the same queries
// as the hosted API, using SQLite FTS5 for the free text.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/db"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/google/uuid"
)

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05Z"

type Index struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens the database at path and returns its index.
func Open(path string) (*Index, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an already migrated database.
func New(conn *sql.DB) *Index {
	return &Index{db: conn, logger: log.ForService("index")}
}

func (i *Index) Close() error {
	return i.db.Close()
}

// DB returns the underlying connection.
func (i *Index) DB() *sql.DB {
	return i.db
}

// AddProject registers p, updating its descriptive fields if a project
// with the same name exists.
func (i *Index) AddProject(ctx context.Context, p core.Project) error {
	if p.Name == "" {
		return errors.New("project name is required")
	}
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO projects (name, display_name, description, foundation, maturity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			foundation = excluded.foundation,
			maturity = excluded.maturity`,
		p.Name, p.DisplayName, p.Description, p.Foundation, p.Maturity)
	if err != nil {
		return fmt.Errorf("adding project %s: %w", p.Name, err)
	}
	return nil
}

// AddRepository registers the GitHub repository at repoURL for project.
// Adding a known repository returns the stored one.
func (i *Index) AddRepository(ctx context.Context, project, repoURL string) (core.Repository, error) {
	owner, name, err := ParseRepositoryURL(repoURL)
	if err != nil {
		return core.Repository{}, err
	}
	canonical := fmt.Sprintf("https://github.com/%s/%s", owner, name)

	var projectID int64
	err = i.db.QueryRowContext(ctx, "SELECT project_id FROM projects WHERE name = ?", project).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Repository{}, fmt.Errorf("project %s: %w", project, core.ErrNotFound)
	}
	if err != nil {
		return core.Repository{}, fmt.Errorf("looking up project %s: %w", project, err)
	}

	_, err = i.db.ExecContext(ctx, `
		INSERT INTO repositories (repository_id, project_id, name, url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`,
		uuid.NewString(), projectID, name, canonical)
	if err != nil {
		return core.Repository{}, fmt.Errorf("adding repository %s: %w", canonical, err)
	}

	var repo core.Repository
	err = i.db.QueryRowContext(ctx, "SELECT repository_id, name, url FROM repositories WHERE url = ?", canonical).
		Scan(&repo.ID, &repo.Name, &repo.URL)
	if err != nil {
		return core.Repository{}, fmt.Errorf("reading repository %s: %w", canonical, err)
	}
	return repo, nil
}

// RepositoriesToTrack returns every registered repository, least recently
// tracked first.
func (i *Index) RepositoriesToTrack(ctx context.Context) ([]core.Repository, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT repository_id, name, url, stars, languages, topics, digest
		FROM repositories
		ORDER BY last_track_ts IS NOT NULL, last_track_ts, url`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []core.Repository
	for rows.Next() {
		var (
			repo                      core.Repository
			stars                     sql.NullInt64
			languages, topics, digest sql.NullString
		)
		if err := rows.Scan(&repo.ID, &repo.Name, &repo.URL, &stars, &languages, &topics, &digest); err != nil {
			return nil, fmt.Errorf("scanning repository: %w", err)
		}
		repo.Stars = int(stars.Int64)
		repo.Languages = decodeList(languages)
		repo.Topics = decodeList(topics)
		repo.Digest = digest.String
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// UpdateRepositoryGitHubData stores the GitHub metadata and digest of repo.
func (i *Index) UpdateRepositoryGitHubData(ctx context.Context, repo core.Repository) error {
	languages, err := encodeList(repo.Languages)
	if err != nil {
		return err
	}
	topics, err := encodeList(repo.Topics)
	if err != nil {
		return err
	}
	res, err := i.db.ExecContext(ctx, `
		UPDATE repositories SET stars = ?, languages = ?, topics = ?, digest = ?
		WHERE repository_id = ?`,
		repo.Stars, languages, topics, repo.Digest, repo.ID)
	if err != nil {
		return fmt.Errorf("updating repository %s: %w", repo.URL, err)
	}
	return expectRow(res, "repository "+repo.ID)
}

// RepositoryIssues returns the issues stored for a repository.
func (i *Index) RepositoryIssues(ctx context.Context, repositoryID string) ([]core.Issue, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT issue_id, title, url, number, labels, published_at, digest
		FROM issues WHERE repository_id = ?
		ORDER BY number`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var issues []core.Issue
	for rows.Next() {
		var (
			issue     core.Issue
			labels    sql.NullString
			published string
		)
		if err := rows.Scan(&issue.ID, &issue.Title, &issue.URL, &issue.Number, &labels, &published, &issue.Digest); err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issue.Labels = decodeList(labels)
		issue.PublishedAt = parseTime(published)
		issue.Repository.ID = repositoryID
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// RegisterIssue inserts or replaces an issue of a repository.
func (i *Index) RegisterIssue(ctx context.Context, repositoryID string, issue core.Issue) error {
	labels, err := encodeList(issue.Labels)
	if err != nil {
		return err
	}
	if !labels.Valid {
		labels = sql.NullString{String: "[]", Valid: true}
	}
	_, err = i.db.ExecContext(ctx, `
		INSERT INTO issues (issue_id, repository_id, title, url, number, labels, published_at, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (issue_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			number = excluded.number,
			labels = excluded.labels,
			published_at = excluded.published_at,
			digest = excluded.digest`,
		issue.ID, repositoryID, issue.Title, issue.URL, issue.Number, labels,
		issue.PublishedAt.UTC().Format(timeLayout), issue.Digest)
	if err != nil {
		return fmt.Errorf("registering issue %d: %w", issue.ID, err)
	}
	return nil
}

// UnregisterIssue removes an issue.
func (i *Index) UnregisterIssue(ctx context.Context, issueID int64) error {
	if _, err := i.db.ExecContext(ctx, "DELETE FROM issues WHERE issue_id = ?", issueID); err != nil {
		return fmt.Errorf("unregistering issue %d: %w", issueID, err)
	}
	return nil
}

// UpdateRepositoryLastTrackTS records that a repository was just tracked.
func (i *Index) UpdateRepositoryLastTrackTS(ctx context.Context, repositoryID string) error {
	res, err := i.db.ExecContext(ctx, "UPDATE repositories SET last_track_ts = ? WHERE repository_id = ?",
		time.Now().UTC().Format(timeLayout), repositoryID)
	if err != nil {
		return fmt.Errorf("updating last track timestamp: %w", err)
	}
	return expectRow(res, "repository "+repositoryID)
}

// Stats counts the rows of the index.
type Stats struct {
	Projects     int
	Repositories int
	Issues       int
}

func (i *Index) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := i.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM projects),
		       (SELECT COUNT(*) FROM repositories),
		       (SELECT COUNT(*) FROM issues)`).Scan(&s.Projects, &s.Repositories, &s.Issues)
	if err != nil {
		return Stats{}, fmt.Errorf("counting index rows: %w", err)
	}
	return s, nil
}

// ParseRepositoryURL extracts owner and name from a GitHub repository URL
// or an "owner/name" shorthand.
func ParseRepositoryURL(raw string) (owner, name string, err error) {
	raw = strings.TrimSpace(raw)
	path := raw
	if strings.Contains(raw, "://") {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", fmt.Errorf("invalid repository url %q: %w", raw, perr)
		}
		if u.Host != "github.com" {
			return "", "", fmt.Errorf("invalid repository url %q: not a github.com repository", raw)
		}
		path = u.Path
	}
	parts := strings.Split(strings.Trim(strings.TrimSuffix(path, ".git"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository url %q: expected owner/name", raw)
	}
	return parts[0], parts[1], nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

func encodeList(values []string) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding list: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(s.String), &values); err != nil {
		return nil
	}
	return values
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
