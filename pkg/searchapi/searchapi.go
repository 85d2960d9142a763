// Package searchapi talks to the issues search backend.
//
// The hosted API is offset/limit paginated: a request carries the free
// text, the filters, the ordering, the page size and the offset of the
// first result, and the response is the page of issues plus the total
// number of matches in the Pagination-Total-Count header.
package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/klauspost/compress/gzhttp"
)

const (
	searchPath        = "/api/issues/search"
	totalCountHeader  = "Pagination-Total-Count"
	maxErrorBodyBytes = 1024
)

// Searcher runs searches. Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error)

func (f SearcherFunc) Search(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error) {
	return f(ctx, q)
}

// Client is a Searcher backed by the remote HTTP search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// NewClient creates a client for the API at baseURL, e.g.
// "https://clotributor.dev".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		logger: log.ForService("searchapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Params builds the query parameters the API expects for q. Filter values
// are sent as indexed keys, e.g. maturity[0]=graduated.
func Params(q core.SearchQuery) url.Values {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = core.DefaultSortBy
	}
	params.Set("sort_by", string(sortBy))
	if text := strings.TrimSpace(q.TextValue()); text != "" {
		params.Set("ts_query_web", text)
	}
	for _, kind := range core.FilterKinds {
		for i, v := range q.Filters[kind] {
			params.Set(fmt.Sprintf("%s[%d]", kind, i), v)
		}
	}
	return params
}

// Search implements Searcher.
func (c *Client) Search(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error) {
	endpoint := c.baseURL + searchPath + "?" + Params(q).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debugf("GET %s", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("searching issues: %w", core.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("searching issues: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), core.ErrOther)
	}

	var issues []apiIssue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	page := &core.SearchResultPage{Items: make([]core.Issue, 0, len(issues))}
	for _, issue := range issues {
		page.Items = append(page.Items, issue.toCore())
	}

	page.Total = len(page.Items)
	if raw := resp.Header.Get(totalCountHeader); raw != "" {
		total, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header %q: %w", totalCountHeader, raw, core.ErrOther)
		}
		page.Total = total
	}

	return page, nil
}

// apiIssue is the wire format of an issue. Timestamps are unix seconds.
type apiIssue struct {
	IssueID     int64         `json:"issue_id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Number      int           `json:"number"`
	Labels      []string      `json:"labels"`
	PublishedAt int64         `json:"published_at"`
	Project     apiProject    `json:"project"`
	Repository  apiRepository `json:"repository"`
}

type apiProject struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url"`
	Foundation  string `json:"foundation"`
	Maturity    string `json:"maturity"`
	DevStatsURL string `json:"devstats_url"`
}

type apiRepository struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Stars     int      `json:"stars"`
	Languages []string `json:"languages"`
	Topics    []string `json:"topics"`
}

func (a apiIssue) toCore() core.Issue {
	return core.Issue{
		ID:          a.IssueID,
		Title:       a.Title,
		URL:         a.URL,
		Number:      a.Number,
		Labels:      a.Labels,
		PublishedAt: time.Unix(a.PublishedAt, 0).UTC(),
		Project: core.Project{
			Name:        a.Project.Name,
			DisplayName: a.Project.DisplayName,
			Description: a.Project.Description,
			LogoURL:     a.Project.LogoURL,
			Foundation:  a.Project.Foundation,
			Maturity:    a.Project.Maturity,
			DevStatsURL: a.Project.DevStatsURL,
		},
		Repository: core.Repository{
			Name:      a.Repository.Name,
			URL:       a.Repository.URL,
			Stars:     a.Repository.Stars,
			Languages: a.Repository.Languages,
			Topics:    a.Repository.Topics,
		},
	}
}
