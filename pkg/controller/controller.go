// Package controller reconciles the URL, the persisted preferences and the
// search backend into the state of a search view.
//
// A Controller runs a single event loop (Run). URL changes, preference
// changes, user actions and search completions are all events processed
// one at a time, so the view state is never touched concurrently. Searches
// run in their own goroutines and report back as events; every request
// carries a sequence number and only the response to the latest request
// is applied.
//
// User actions never call the backend. They compute the next canonical URL
// and hand it to the Navigator, whose change notification comes back as a
// URL change event.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/filters"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
	"github.com/cloradar/cloradar/pkg/urlstate"
)

// ErrNotRunning is returned by WaitFor and WaitIdle after Run returned.
var ErrNotRunning = errors.New("controller is not running")

// Controller drives one search view.
type Controller struct {
	searcher searchapi.Searcher
	prefs    *prefs.Store
	nav      Navigator
	logger   *log.Logger

	unsubscribe func()

	mu        sync.Mutex
	queue     []event
	wake      chan struct{}
	published View
	changed   chan struct{}
	posted    uint64
	stopped   bool

	// Owned by the event loop.
	ctx       context.Context
	view      View
	started   bool
	resetNext bool
	awaitNav  bool
	sortReset bool
	scroll    map[string]int
	processed uint64
	inFlight  int
}

// New creates a controller. It subscribes to store so that preference
// changes made anywhere re-run the search; call Close to unsubscribe.
func New(searcher searchapi.Searcher, store *prefs.Store, nav Navigator) *Controller {
	c := &Controller{
		searcher: searcher,
		prefs:    store,
		nav:      nav,
		logger:   log.ForService("controller"),
		wake:     make(chan struct{}, 1),
		changed:  make(chan struct{}),
		scroll:   make(map[string]int),
	}
	c.view = View{State: Idle, Prefs: store.Get(), Filters: urlstate.SearchFilters{PageNumber: 1, Filters: core.Filters{}}}
	c.published = c.view
	c.unsubscribe = store.Subscribe(func(ch prefs.Change) {
		c.post(prefsChanged{change: ch})
	})
	return c
}

// NewWithHistory creates a controller together with the in-memory history
// it navigates, positioned at rawQuery.
func NewWithHistory(searcher searchapi.Searcher, store *prefs.Store, rawQuery string) (*Controller, *History) {
	h := NewHistory(rawQuery)
	c := New(searcher, store, h)
	h.OnChange = c.URLChanged
	return c, h
}

// Close stops listening to preference changes.
func (c *Controller) Close() {
	c.unsubscribe()
}

// Run processes events until ctx is done. Searches started by the loop
// use ctx too, so cancelling it aborts them.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer func() {
		c.mu.Lock()
		c.stopped = true
		close(c.changed)
		c.changed = make(chan struct{})
		c.mu.Unlock()
	}()

	for {
		ev, ok := c.next()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		ev.handle(c)
		c.processed++
		c.publish()
	}
}

// Snapshot returns the latest published view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// WaitFor blocks until pred accepts a published view and returns it.
func (c *Controller) WaitFor(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		c.mu.Lock()
		v, ch, stopped := c.published, c.changed, c.stopped
		c.mu.Unlock()

		if pred(v) {
			return v, nil
		}
		if stopped {
			return v, ErrNotRunning
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// WaitIdle blocks until every event posted so far, and everything they
// triggered, has been processed.
func (c *Controller) WaitIdle(ctx context.Context) (View, error) {
	c.mu.Lock()
	target := c.posted
	c.mu.Unlock()
	return c.WaitFor(ctx, func(v View) bool {
		return v.Processed >= target && v.Idle()
	})
}

// URLChanged reports that the address changed. It is safe to call from
// any goroutine, including from within a Navigator.
func (c *Controller) URLChanged(nav Navigation) {
	c.post(navigated{nav: nav})
}

// ReportScroll records the scroll offset of the current page.
func (c *Controller) ReportScroll(y int) {
	c.post(scrolled{y: y})
}

// Search starts a search for a new free text, keeping the filters.
func (c *Controller) Search(text string) {
	c.post(action{name: "search", fn: func(c *Controller) {
		next := c.view.Filters
		next.Text = urlstate.Text(text)
		next.PageNumber = 1
		c.navigate(next, false)
	}})
}

// ToggleFilter selects or deselects a filter value and goes back to the
// first page.
func (c *Controller) ToggleFilter(kind core.FilterKind, value string, checked bool) {
	c.post(action{name: "toggle filter", fn: func(c *Controller) {
		next := c.view.Filters
		next.Filters = filters.Toggle(next.Filters, kind, value, checked)
		next.PageNumber = 1
		c.navigate(next, true)
	}})
}

// ResetFilters clears all filters, keeping the free text.
func (c *Controller) ResetFilters() {
	c.post(action{name: "reset filters", fn: func(c *Controller) {
		next := c.view.Filters
		next.Filters = filters.Reset()
		next.PageNumber = 1
		c.navigate(next, true)
	}})
}

// ChangePage moves to page.
func (c *Controller) ChangePage(page int) {
	c.post(action{name: "change page", fn: func(c *Controller) {
		next := c.view.Filters
		next.PageNumber = max(page, 1)
		c.navigate(next, true)
	}})
}

// ChangeSort persists a new ordering and searches again from page 1.
func (c *Controller) ChangeSort(by core.SortBy) {
	c.post(action{name: "change sort", fn: func(c *Controller) {
		c.updatePreferences(prefs.WithSort(by))
	}})
}

// ChangeLimit persists a new page size and searches again from page 1.
func (c *Controller) ChangeLimit(limit int) {
	c.post(action{name: "change limit", fn: func(c *Controller) {
		c.updatePreferences(prefs.WithLimit(limit))
	}})
}

// ChangeSearchPreferences applies ordering and page size in a single
// step. A nil value is left unchanged.
func (c *Controller) ChangeSearchPreferences(by *core.SortBy, limit *int) {
	c.post(action{name: "change search preferences", fn: func(c *Controller) {
		c.updatePreferences(func(p prefs.Preferences) prefs.Preferences {
			if by != nil {
				p = prefs.WithSort(*by)(p)
			}
			if limit != nil {
				p = prefs.WithLimit(*limit)(p)
			}
			return p
		})
	}})
}

// BuildQuery combines the URL state with the search preferences into a
// backend request.
func BuildQuery(f urlstate.SearchFilters, p prefs.Search) core.SearchQuery {
	var text *string
	if f.Text != nil && *f.Text != "" {
		t := *f.Text
		text = &t
	}
	return core.SearchQuery{
		Text:    text,
		Filters: f.Filters.Clone(),
		SortBy:  p.Sort.By,
		Limit:   p.Limit,
		Offset:  core.Offset(f.PageNumber, p.Limit),
	}
}

// updatePreferences writes a sort or limit change. The preferences are
// stored right away so they survive even if the navigation that follows
// never completes. On pages past the first the view navigates to page 1
// and that navigation runs the search; otherwise the resulting preference
// change event does.
func (c *Controller) updatePreferences(fn func(prefs.Preferences) prefs.Preferences) {
	onFirstPage := c.view.Filters.PageNumber <= 1
	c.awaitNav = !onFirstPage
	c.resetNext = true

	before := c.prefs.Get()
	after, err := c.prefs.Update(fn)
	if err != nil {
		c.logger.Errorf("updating preferences: %v", err)
	}
	if onFirstPage && (err != nil || after == before) {
		// No change event will follow.
		c.resetNext = false
		return
	}

	if !onFirstPage {
		next := c.view.Filters
		next.PageNumber = 1
		c.navigate(next, true)
	}
}

func (c *Controller) navigate(next urlstate.SearchFilters, resetScroll bool) {
	if c.started && next.Equal(c.view.Filters) {
		c.logger.Debugf("already at %q", urlstate.EncodeString(next))
		return
	}
	if c.nav == nil {
		c.logger.Warnf("no navigator, dropping navigation to %q", urlstate.EncodeString(next))
		return
	}
	c.nav.Navigate(Navigation{RawQuery: urlstate.EncodeString(next), ResetScroll: resetScroll})
}

func (c *Controller) handleNavigation(nav Navigation) {
	decoded := urlstate.Parse(nav.RawQuery)
	textChanged := c.started && decoded.TextValue() != c.view.Filters.TextValue()

	c.started = true
	c.awaitNav = false
	c.resetNext = nav.ResetScroll
	c.view.Filters = decoded
	c.view.RawQuery = urlstate.EncodeString(decoded)

	current := c.prefs.Get()
	if textChanged && current.Search.Sort.By != core.DefaultSortBy {
		// A new text is searched with the default ordering. The search
		// itself waits for the preference change event.
		c.sortReset = true
		_, err := c.prefs.Update(prefs.WithSort(core.DefaultSortBy))
		if err == nil {
			c.logger.Debugf("text changed, sort reset to %s", core.DefaultSortBy)
			return
		}
		c.logger.Errorf("resetting sort: %v", err)
		c.sortReset = false
		current = c.prefs.Get()
	}

	c.startSearch(current)
}

// handlePrefsChanged decides from ch whether to search again, but always
// searches with the store's current value: a later update may already be
// committed when this event is handled.
func (c *Controller) handlePrefsChanged(ch prefs.Change) {
	current := c.prefs.Get()
	c.view.Prefs = current
	if !c.started {
		return
	}

	if c.sortReset {
		c.sortReset = false
		c.startSearch(current)
		return
	}

	if c.awaitNav || ch.Old.Search == ch.New.Search {
		return
	}
	c.startSearch(current)
}

func (c *Controller) startSearch(p prefs.Preferences) {
	c.view.Prefs = p
	q := BuildQuery(c.view.Filters, p.Search)

	c.view.Issued++
	seq := c.view.Issued
	resetScroll := c.resetNext
	c.resetNext = false

	c.view.State = Loading
	c.view.Loading = true
	c.view.Query = q
	c.inFlight++

	c.logger.Debugf("search #%d: text=%q filters=%v sort=%s limit=%d offset=%d",
		seq, q.TextValue(), q.Filters, q.SortBy, q.Limit, q.Offset)

	ctx := c.ctx
	go func() {
		var page *core.SearchResultPage
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("search panicked: %v", r)
			}
			c.post(searchDone{seq: seq, page: page, err: err, resetScroll: resetScroll})
		}()
		page, err = c.searcher.Search(ctx, q)
		if err == nil && page == nil {
			err = fmt.Errorf("search returned no page: %w", core.ErrOther)
		}
	}()
}

func (c *Controller) handleSearchDone(ev searchDone) {
	c.inFlight--
	if ev.seq != c.view.Issued {
		c.view.Stale++
		c.logger.Debugf("discarding stale response #%d (latest #%d)", ev.seq, c.view.Issued)
		return
	}
	defer func() { c.view.Loading = false }()

	if ev.err != nil {
		c.logger.Errorf("search #%d failed: %v", ev.seq, ev.err)
		c.view.State = Failed
		c.view.Error = core.SearchErrorMessage
		c.view.Results = nil
		c.view.Applied = ev.seq
		return
	}

	hadItems := len(c.view.Items()) > 0
	c.view.State = Loaded
	c.view.Error = ""
	c.view.Results = ev.page
	c.view.Applied = ev.seq

	if ev.resetScroll || !hadItems {
		c.view.ScrollY = 0
	} else {
		c.view.ScrollY = c.scroll[c.view.RawQuery]
	}
}

func (c *Controller) handleScroll(y int) {
	c.view.ScrollY = y
	if c.started {
		c.scroll[c.view.RawQuery] = y
	}
}

func (c *Controller) post(ev event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.posted++
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) next() (event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	ev := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return ev, true
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	v.Processed = c.processed
	v.Pending = c.posted - c.processed
	v.InFlight = c.inFlight
	c.published = v
	close(c.changed)
	c.changed = make(chan struct{})
}
