package types

import "time"

// SearchPage is everything the search page template renders.
type SearchPage struct {
	Title   string
	Version string

	// Theme is the effective theme, ThemeConfigured the user's choice.
	Theme           string
	ThemeConfigured string

	// RawQuery is the canonical query string of the page, sent back by the
	// preference forms so the server can find the page again.
	RawQuery string
	Text     string

	Loading bool
	Error   string
	ScrollY int

	// Requests is the sequence number of the search shown, used by the
	// page to notice newer results.
	Requests uint64

	Total      int
	Page       int
	TotalPages int

	FilterGroups  []FilterGroup
	ActiveFilters int
	SortOptions   []SelectOption
	LimitOptions  []SelectOption
	ThemeOptions  []SelectOption

	Issues     []IssueCard
	Pagination Pagination

	NoResults       bool
	CanResetFilters bool
	ResetHref       string
	BrowseAllHref   string
}

// FilterGroup is one filter category with its selectable values.
type FilterGroup struct {
	Kind    string
	Title   string
	Options []FilterOption
}

// FilterOption links to the page with the option toggled.
type FilterOption struct {
	Value    string
	Name     string
	Selected bool
	Href     string
}

type SelectOption struct {
	Value    string
	Name     string
	Selected bool
}

// IssueCard represents an issue for web display
type IssueCard struct {
	Title          string
	URL            string
	Number         int
	Labels         []string
	PublishedAt    time.Time
	ProjectName    string
	ProjectLogo    string
	Foundation     string
	Maturity       string
	RepositoryName string
	RepositoryURL  string
	Stars          int
	Languages      []string
	Topics         []string
}

type Pagination struct {
	Prev  string
	Next  string
	Pages []PageLink
}

// PageLink is a numbered page. Gap marks an elided range and has no link.
type PageLink struct {
	Number  int
	Href    string
	Current bool
	Gap     bool
}
