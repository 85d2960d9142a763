package controller

import (
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
)

// event is a unit of work for the controller loop.
type event interface {
	handle(c *Controller)
}

type navigated struct {
	nav Navigation
}

func (e navigated) handle(c *Controller) { c.handleNavigation(e.nav) }

type prefsChanged struct {
	change prefs.Change
}

func (e prefsChanged) handle(c *Controller) { c.handlePrefsChanged(e.change) }

type searchDone struct {
	seq         uint64
	page        *core.SearchResultPage
	err         error
	resetScroll bool
}

func (e searchDone) handle(c *Controller) { c.handleSearchDone(e) }

type scrolled struct {
	y int
}

func (e scrolled) handle(c *Controller) { c.handleScroll(e.y) }

// action is a user action evaluated against the loop state.
type action struct {
	name string
	fn   func(c *Controller)
}

func (e action) handle(c *Controller) {
	c.logger.Debugf("action: %s", e.name)
	e.fn(c)
}
