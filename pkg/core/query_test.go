package core

import (
	"math"
	"testing"
)

func TestOffset(t *testing.T) {
	tests := []struct {
		page, limit, want int
	}{
		{1, 20, 0},
		{2, 20, 20},
		{3, 20, 40},
		{0, 20, 0},
		{-4, 20, 0},
		{5, 10, 40},
		{2, 0, 0},
		{922337203685477580, 20, 0},
		{math.MaxInt, 60, 0},
	}
	for _, tt := range tests {
		if got := Offset(tt.page, tt.limit); got != tt.want {
			t.Errorf("Offset(%d, %d) = %d, want %d", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestTotalPages(t *testing.T) {
	if got := TotalPages(0, 20); got != 1 {
		t.Errorf("expected 1 page for no results, got %d", got)
	}
	if got := TotalPages(41, 20); got != 3 {
		t.Errorf("expected 3 pages, got %d", got)
	}
	if got := TotalPages(40, 20); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
}

func TestParseSortBy(t *testing.T) {
	if s, ok := ParseSortBy("most_recent"); !ok || s != SortMostRecent {
		t.Errorf("expected most_recent, got %q (%v)", s, ok)
	}
	if s, ok := ParseSortBy("bogus"); ok || s != DefaultSortBy {
		t.Errorf("expected default sort for unknown value, got %q (%v)", s, ok)
	}
}

func TestFiltersCloneIsDeep(t *testing.T) {
	f := Filters{FilterMaturity: {"graduated"}}
	c := f.Clone()
	c[FilterMaturity][0] = "sandbox"
	if f[FilterMaturity][0] != "graduated" {
		t.Fatalf("clone shares backing array with original")
	}
	if !(Filters{}).IsEmpty() || !Filters(nil).IsEmpty() {
		t.Fatalf("expected empty filters")
	}
	if !f.Equal(Filters{FilterMaturity: {"graduated"}, FilterFoundation: nil}) {
		t.Fatalf("expected filters to be equal ignoring empty categories")
	}
}
