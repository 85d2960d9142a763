package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cloradar/cloradar/pkg/core"
)

// Search implements searchapi.Searcher over the local index.
//
// Every word of the free text must match the issue title or labels.
// Relevance orders by FTS5 bm25 rank; without text, and for most_recent,
// the newest issues come first.
func (i *Index) Search(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error) {
	match := ftsQuery(q.TextValue())

	from := `
		FROM issues i
		JOIN repositories r ON r.repository_id = i.repository_id
		JOIN projects p ON p.project_id = r.project_id`
	var where []string
	var args []any

	if match != "" {
		from += `
		JOIN issues_fts ON issues_fts.rowid = i.issue_id`
		where = append(where, "issues_fts MATCH ?")
		args = append(args, match)
	}

	columns := map[core.FilterKind]string{
		core.FilterFoundation: "p.foundation",
		core.FilterMaturity:   "p.maturity",
	}
	for _, kind := range core.FilterKinds {
		values := q.Filters[kind]
		if len(values) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		where = append(where, fmt.Sprintf("%s IN (%s)", columns[kind], placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "\n\t\tWHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting issues: %w", err)
	}

	orderBy := "i.published_at DESC, i.issue_id DESC"
	if match != "" && q.SortBy != core.SortMostRecent {
		orderBy = "bm25(issues_fts), " + orderBy
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT i.issue_id, i.title, i.url, i.number, i.labels, i.published_at,
		       p.name, p.display_name, p.description, p.foundation, p.maturity,
		       r.repository_id, r.name, r.url, r.stars, r.languages, r.topics` +
		from + whereClause + `
		ORDER BY ` + orderBy + `
		LIMIT ? OFFSET ?`
	args = append(args, limit, max(q.Offset, 0))

	i.logger.Debugf("search text=%q match=%q filters=%v sort=%s", q.TextValue(), match, q.Filters, q.SortBy)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	defer rows.Close()

	page := &core.SearchResultPage{Items: []core.Issue{}, Total: total}
	for rows.Next() {
		var (
			issue             core.Issue
			labels            sql.NullString
			published         string
			stars             sql.NullInt64
			languages, topics sql.NullString
		)
		err := rows.Scan(
			&issue.ID, &issue.Title, &issue.URL, &issue.Number, &labels, &published,
			&issue.Project.Name, &issue.Project.DisplayName, &issue.Project.Description,
			&issue.Project.Foundation, &issue.Project.Maturity,
			&issue.Repository.ID, &issue.Repository.Name, &issue.Repository.URL,
			&stars, &languages, &topics,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issue.Labels = decodeList(labels)
		issue.PublishedAt = parseTime(published)
		issue.Repository.Stars = int(stars.Int64)
		issue.Repository.Languages = decodeList(languages)
		issue.Repository.Topics = decodeList(topics)
		page.Items = append(page.Items, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}
	return page, nil
}

// ftsQuery turns free text into an FTS5 expression where each word is a
// quoted string, so user input never reaches the FTS5 query syntax.
func ftsQuery(text string) string {
	var terms []string
	for _, word := range strings.Fields(text) {
		terms = append(terms, `"`+strings.ReplaceAll(word, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
