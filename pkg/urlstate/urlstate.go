// Package urlstate maps the search page state to and from URL query
// strings.
//
// The URL is the source of truth for what a search view shows: the free
// text, the selected filters and the page number are never stored anywhere
// else. Key names are a stable contract for shared and bookmarked links:
//
//   - ts_query_web: free text query
//   - foundation: selected foundation (repeated once per value)
//   - maturity: selected maturity level (repeated once per value)
//   - page: 1-based page number
//
// Encoding is canonical: defaults (page 1, no text, empty categories) are
// elided and keys/values are written in a fixed order, so encoding a
// decoded value yields the same string again.
package urlstate

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cloradar/cloradar/pkg/core"
)

const (
	// TextKey holds the free text query.
	TextKey = "ts_query_web"
	// PageKey holds the 1-based page number.
	PageKey = "page"

	// MaxPage is the largest page number accepted from a URL. Larger
	// values decode to the first page.
	MaxPage = 1_000_000
)

// SearchFilters is the part of the search state carried by the URL.
type SearchFilters struct {
	PageNumber int
	Text       *string
	Filters    core.Filters
}

// TextValue returns the free text or "" when there is none.
func (s SearchFilters) TextValue() string {
	if s.Text == nil {
		return ""
	}
	return *s.Text
}

// Equal reports whether both values describe the same canonical URL.
func (s SearchFilters) Equal(other SearchFilters) bool {
	return max(s.PageNumber, 1) == max(other.PageNumber, 1) &&
		strings.TrimSpace(s.TextValue()) == strings.TrimSpace(other.TextValue()) &&
		s.Filters.Equal(other.Filters)
}

// Text returns a pointer to s, or nil when s is blank.
func Text(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Encode builds the canonical query values for s.
func Encode(s SearchFilters) url.Values {
	values := url.Values{}
	if strings.TrimSpace(s.TextValue()) != "" {
		values.Set(TextKey, *s.Text)
	}
	for _, kind := range core.FilterKinds {
		for _, v := range dedupe(s.Filters[kind]) {
			values.Add(string(kind), v)
		}
	}
	if s.PageNumber > 1 {
		values.Set(PageKey, strconv.Itoa(s.PageNumber))
	}
	return values
}

// EncodeString returns the canonical query string for s, without the
// leading '?'.
//
// url.Values.Encode sorts keys, which keeps the output deterministic while
// values of a repeated key keep their selection order.
func EncodeString(s SearchFilters) string {
	return Encode(s).Encode()
}

// Decode parses query values into SearchFilters. Missing or malformed
// parameters fall back to defaults; decoding never fails.
func Decode(values url.Values) SearchFilters {
	s := SearchFilters{
		PageNumber: 1,
		Filters:    core.Filters{},
	}

	if text := values[TextKey]; len(text) > 0 {
		s.Text = Text(text[0])
	}

	for _, kind := range core.FilterKinds {
		selected := dedupe(values[string(kind)])
		if len(selected) > 0 {
			s.Filters[kind] = selected
		}
	}

	if page := values[PageKey]; len(page) > 0 && page[0] != "" {
		if parsed, err := strconv.Atoi(page[0]); err == nil && parsed > 0 && parsed <= MaxPage {
			s.PageNumber = parsed
		}
	}

	return s
}

// Parse decodes a raw query string. A leading '?' is accepted. Malformed
// pairs are skipped.
func Parse(rawQuery string) SearchFilters {
	values, _ := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	return Decode(values)
}

// Path returns base followed by the canonical query for s.
func Path(base string, s SearchFilters) string {
	q := EncodeString(s)
	if q == "" {
		return base
	}
	return base + "?" + q
}

// dedupe drops empty and repeated values, keeping first occurrences.
func dedupe(values []string) []string {
	var out []string
	for _, v := range values {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
