package searchapi

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cloradar/cloradar/pkg/core"
)

// ErrNoSearcher is returned by a Switch that was never given a Searcher.
var ErrNoSearcher = errors.New("no search backend configured")

// Switch is a Searcher whose backend can be replaced while in use, e.g.
// after the configuration file changed. Searches already running keep the
// backend they started with.
type Switch struct {
	current atomic.Pointer[holder]
}

type holder struct {
	s Searcher
}

func NewSwitch(s Searcher) *Switch {
	sw := &Switch{}
	sw.Set(s)
	return sw
}

// Set replaces the backend.
func (sw *Switch) Set(s Searcher) {
	sw.current.Store(&holder{s: s})
}

// Current returns the backend in use.
func (sw *Switch) Current() Searcher {
	h := sw.current.Load()
	if h == nil {
		return nil
	}
	return h.s
}

func (sw *Switch) Search(ctx context.Context, q core.SearchQuery) (*core.SearchResultPage, error) {
	s := sw.Current()
	if s == nil {
		return nil, ErrNoSearcher
	}
	return s.Search(ctx, q)
}
