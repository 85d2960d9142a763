// Package filters edits the per-category filter selection of a search.
package filters

import (
	"slices"

	"github.com/cloradar/cloradar/pkg/core"
)

// Toggle returns a copy of f with value selected (checked) or deselected
// for kind. Selecting an already selected value is a no-op, and a category
// left without values is removed. f itself is never modified.
func Toggle(f core.Filters, kind core.FilterKind, value string, checked bool) core.Filters {
	out := f.Clone()
	if value == "" {
		return out
	}

	current := out[kind]
	if checked {
		if !slices.Contains(current, value) {
			out[kind] = append(current, value)
		}
		return out
	}

	current = slices.DeleteFunc(current, func(v string) bool { return v == value })
	if len(current) == 0 {
		delete(out, kind)
	} else {
		out[kind] = current
	}
	return out
}

// Reset returns an empty selection.
func Reset() core.Filters {
	return core.Filters{}
}

// Editor holds a filter selection being edited.
type Editor struct {
	selected core.Filters
}

// NewEditor starts editing a copy of initial.
func NewEditor(initial core.Filters) *Editor {
	return &Editor{selected: initial.Clone()}
}

// Toggle selects or deselects value for kind.
func (e *Editor) Toggle(kind core.FilterKind, value string, checked bool) {
	e.selected = Toggle(e.selected, kind, value, checked)
}

// IsSelected reports whether value is selected for kind.
func (e *Editor) IsSelected(kind core.FilterKind, value string) bool {
	return slices.Contains(e.selected[kind], value)
}

// Selected returns the values selected for kind.
func (e *Editor) Selected(kind core.FilterKind) []string {
	return slices.Clone(e.selected[kind])
}

// Count returns the number of selected values across all categories.
func (e *Editor) Count() int {
	n := 0
	for _, v := range e.selected {
		n += len(v)
	}
	return n
}

// Snapshot returns a copy of the current selection.
func (e *Editor) Snapshot() core.Filters {
	return e.selected.Clone()
}
