// Package prefs holds the persisted, user-scoped preferences: the search
// page size and ordering, and the UI theme.
//
// Preferences are owned by a Store that is passed explicitly to whoever
// needs them. Readers get immutable snapshots; writers go through Update,
// which persists synchronously (last write wins) and then notifies
// subscribers.
package prefs

import (
	"slices"

	"github.com/cloradar/cloradar/pkg/core"
)

const (
	DefaultLimit = 20

	ThemeAutomatic = "automatic"
	ThemeLight     = "light"
	ThemeDark      = "dark"
)

// Limits are the page sizes offered to users.
var Limits = []int{10, 20, 40, 60}

// Themes are the configurable themes.
var Themes = []string{ThemeAutomatic, ThemeLight, ThemeDark}

// Preferences is the persisted preferences document.
type Preferences struct {
	Search Search `json:"search"`
	Theme  Theme  `json:"theme"`
}

type Search struct {
	Limit int  `json:"limit"`
	Sort  Sort `json:"sort"`
}

type Sort struct {
	By core.SortBy `json:"by"`
}

type Theme struct {
	Configured string `json:"configured"`
	Effective  string `json:"effective"`
}

// Default returns the preferences used before anything was saved.
func Default() Preferences {
	return Preferences{
		Search: Search{Limit: DefaultLimit, Sort: Sort{By: core.DefaultSortBy}},
		Theme:  Theme{Configured: ThemeAutomatic, Effective: ThemeLight},
	}
}

// Normalize replaces invalid values with defaults and derives the
// effective theme from the configured one.
func (p Preferences) Normalize() Preferences {
	if !slices.Contains(Limits, p.Search.Limit) {
		p.Search.Limit = DefaultLimit
	}
	if by, ok := core.ParseSortBy(string(p.Search.Sort.By)); ok {
		p.Search.Sort.By = by
	} else {
		p.Search.Sort.By = core.DefaultSortBy
	}
	if !slices.Contains(Themes, p.Theme.Configured) {
		p.Theme.Configured = ThemeAutomatic
	}
	p.Theme.Effective = EffectiveTheme(p.Theme.Configured)
	return p
}

// EffectiveTheme resolves the theme actually rendered. Without a client
// reporting its color scheme, automatic renders as light.
func EffectiveTheme(configured string) string {
	if configured == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// WithSort returns a copy of p ordering results by by.
func WithSort(by core.SortBy) func(Preferences) Preferences {
	return func(p Preferences) Preferences {
		p.Search.Sort.By = by
		return p
	}
}

// WithLimit returns a copy of p with page size limit.
func WithLimit(limit int) func(Preferences) Preferences {
	return func(p Preferences) Preferences {
		p.Search.Limit = limit
		return p
	}
}

// WithTheme returns a copy of p with the configured theme set.
func WithTheme(theme string) func(Preferences) Preferences {
	return func(p Preferences) Preferences {
		p.Theme.Configured = theme
		return p
	}
}
