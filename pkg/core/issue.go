package core

import (
	"fmt"
	"time"
)

// Issue is a single contribution opportunity returned by a search.
//
// Issues are snapshots: once a search returns them nothing in cloradar
// modifies them. The Digest is computed by the tracker from the fields that
// matter for change detection (title and labels) and is empty for issues
// coming from the remote search API.
type Issue struct {
	ID          int64      `json:"issue_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Number      int        `json:"number"`
	Labels      []string   `json:"labels,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	Project     Project    `json:"project"`
	Repository  Repository `json:"repository"`
	Digest      string     `json:"digest,omitempty"`
}

// Project describes the open-source project owning a repository.
type Project struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	Foundation  string `json:"foundation,omitempty"`
	Maturity    string `json:"maturity,omitempty"`
	DevStatsURL string `json:"devstats_url,omitempty"`
}

// Title returns the display name if set, the name otherwise.
func (p Project) Title() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// Repository holds the GitHub metadata of the repository an issue lives in.
type Repository struct {
	ID        string   `json:"repository_id,omitempty"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Stars     int      `json:"stars,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Digest    string   `json:"digest,omitempty"`
}

// SearchResultPage is one page of search results.
type SearchResultPage struct {
	Items []Issue `json:"items"`
	Total int     `json:"total"`
}

// Summary returns a one-line description of the issue.
func (i Issue) Summary() string {
	return fmt.Sprintf("%s #%d: %s", i.Repository.Name, i.Number, i.Title)
}
