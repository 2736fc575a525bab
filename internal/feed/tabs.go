// Package feed decides which stream rooms a reader is subscribed to and when
// the activity feeds are (re)fetched.
package feed

import (
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/reconcile"
)

// Tab is one of the selectable stream tabs
type Tab string

const (
	TabGlobal      Tab = "global"
	TabPersonal    Tab = "personal"
	TabShelves     Tab = "shelves"
	TabLastActions Tab = "last-actions"
)

// Tabs lists the tabs in display order
var Tabs = []Tab{TabGlobal, TabPersonal, TabShelves, TabLastActions}

// ParseTab validates s as a tab name
func ParseTab(s string) (Tab, bool) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// RequiresAuth reports whether the tab is only available to signed in viewers
func (t Tab) RequiresAuth() bool { return t == TabPersonal || t == TabShelves }

// AlwaysOn reports whether the tab's room stays joined for the whole mount,
// whatever tab is active
func (t Tab) AlwaysOn() bool { return t == TabGlobal || t == TabLastActions }

// Room is the socket room that carries the tab's events
func (t Tab) Room() string {
	switch t {
	case TabPersonal:
		return models.RoomPersonal
	case TabShelves:
		return models.RoomShelves
	case TabLastActions:
		return models.RoomLastActions
	default:
		return models.RoomGlobal
	}
}

// Feed is the cached feed shown by the tab
func (t Tab) Feed() reconcile.Feed { return reconcile.Feed(t) }

// AlwaysOnRooms are joined on mount and only left on unmount
func AlwaysOnRooms() []string {
	return []string{TabGlobal.Room(), TabLastActions.Room()}
}

// Transition is what switching from one tab to another requires
type Transition struct {
	Join         []string
	Leave        []string
	Fetch        bool
	AuthRequired bool
}

// Plan computes the transition from prev (empty on first activation) to next.
// A tab that needs auth for an anonymous viewer yields AuthRequired and
// nothing else; the previous tab-specific room is still released.
func Plan(prev, next Tab, authenticated bool) Transition {
	var tr Transition
	if prev != "" && prev != next && !prev.AlwaysOn() {
		tr.Leave = []string{prev.Room()}
	}
	if next.RequiresAuth() && !authenticated {
		tr.AuthRequired = true
		return tr
	}
	if !next.AlwaysOn() && next != prev {
		tr.Join = []string{next.Room()}
	}
	tr.Fetch = true
	return tr
}
