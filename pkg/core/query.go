package core

import (
	"math"
	"slices"
	"strings"
)

// FilterKind identifies a filter category. The string value doubles as the
// URL query key and the search API filter key, so it is part of the public
// contract of shareable links.
type FilterKind string

const (
	FilterFoundation FilterKind = "foundation"
	FilterMaturity   FilterKind = "maturity"
)

// FilterKinds lists every filter category in canonical order.
var FilterKinds = []FilterKind{FilterFoundation, FilterMaturity}

// ParseFilterKind returns the FilterKind named by s.
func ParseFilterKind(s string) (FilterKind, bool) {
	for _, k := range FilterKinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}

// SortBy is the ordering requested from the search API.
type SortBy string

const (
	SortMostRecent SortBy = "most_recent"
	SortRelevance  SortBy = "relevance"

	// DefaultSortBy is used when nothing else was selected, and whenever the
	// free text of a search changes.
	DefaultSortBy = SortRelevance
)

// SortOptions lists the supported orderings.
var SortOptions = []SortBy{SortRelevance, SortMostRecent}

// ParseSortBy parses s, returning DefaultSortBy and false for unknown values.
func ParseSortBy(s string) (SortBy, bool) {
	for _, opt := range SortOptions {
		if string(opt) == strings.ToLower(strings.TrimSpace(s)) {
			return opt, true
		}
	}
	return DefaultSortBy, false
}

// Filters maps a filter category to its selected values, in selection order.
// A missing key means nothing is selected for that category.
type Filters map[FilterKind][]string

// Clone returns a deep copy of f. A nil receiver yields an empty map.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		if len(v) > 0 {
			out[k] = slices.Clone(v)
		}
	}
	return out
}

// IsEmpty reports whether no value is selected in any category.
func (f Filters) IsEmpty() bool {
	for _, v := range f {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Equal reports whether f and other select the same values in the same order.
func (f Filters) Equal(other Filters) bool {
	for _, k := range FilterKinds {
		if !slices.Equal(f[k], other[k]) {
			return false
		}
	}
	return true
}

// SearchQuery is the request sent to a search backend.
type SearchQuery struct {
	Text    *string
	Filters Filters
	SortBy  SortBy
	Limit   int
	Offset  int
}

// TextValue returns the free text or "" when none was given.
func (q SearchQuery) TextValue() string {
	if q.Text == nil {
		return ""
	}
	return *q.Text
}

// Offset computes the index of the first result of page for the given page
// size. Pages are 1-based; anything below 1, or so large that the offset
// would overflow, is treated as the first page.
func Offset(page, limit int) int {
	if limit <= 0 || page < 1 || page-1 > math.MaxInt32/limit {
		return 0
	}
	return (page - 1) * limit
}

// TotalPages returns how many pages of size limit are needed for total results.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
