package filters

import (
	"strings"

	"github.com/cloradar/cloradar/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option is a selectable filter value.
type Option struct {
	Value string
	Name  string
}

var catalog = map[core.FilterKind][]Option{
	core.FilterFoundation: {
		{Value: "cdf", Name: "CD Foundation"},
		{Value: "cncf", Name: "CNCF"},
		{Value: "lfaidata", Name: "LF AI & Data"},
		{Value: "openssf", Name: "OpenSSF"},
	},
	core.FilterMaturity: {
		{Value: "graduated", Name: "Graduated"},
		{Value: "incubating", Name: "Incubating"},
		{Value: "sandbox", Name: "Sandbox"},
	},
}

// Options returns the known values for kind, in display order.
func Options(kind core.FilterKind) []Option {
	return append([]Option(nil), catalog[kind]...)
}

// KindTitle returns the label used for a filter category heading.
func KindTitle(kind core.FilterKind) string {
	return cases.Title(language.English).String(string(kind))
}

// DisplayName returns the human readable name of value. Values missing
// from the catalog are title-cased.
func DisplayName(kind core.FilterKind, value string) string {
	for _, opt := range catalog[kind] {
		if opt.Value == value {
			return opt.Name
		}
	}
	return cases.Title(language.English).String(strings.ReplaceAll(value, "_", " "))
}

// SortName returns the label of a sort option.
func SortName(s core.SortBy) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}
