package core

import "errors"

// Search failures reported by a backend. The UI renders both the same way;
// they exist so logs and tests can tell them apart.
var (
	ErrNotFound = errors.New("not found")
	ErrOther    = errors.New("search backend error")
)

// SearchErrorMessage is the only failure text ever shown to users.
const SearchErrorMessage = "An error occurred searching issues."
