package feed

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/fetchcache"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/reconcile"
)

// ErrAuthRequired is returned when an anonymous viewer activates a tab that
// needs a signed in user
var ErrAuthRequired = errors.New("sign in to see this feed")

// Loader fetches one feed from the API
type Loader interface {
	Stream(ctx context.Context, feed string) ([]models.Activity, error)
}

// Channel is the socket surface the controller drives
type Channel interface {
	reconcile.Subscriber
	JoinRoom(room string)
	LeaveRoom(room string)
}

// Viewer describes who is looking at the feeds
type Viewer interface {
	ID() string
	Authenticated() bool
}

// Controller owns the subscription lifecycle of the stream page: room
// membership, reconciler handlers and fetch/refetch of the active feed.
type Controller struct {
	fetcher *fetchcache.Fetcher[[]models.Activity]
	loader  Loader
	channel Channel
	viewer  Viewer
	rec     *reconcile.Reconciler

	mu      sync.Mutex
	mounted bool
	active  Tab
	joined  Tab // last tab whose plan succeeded, "" when no tab room is held
	visible bool
	dispose func()
}

// NewController creates a controller over a shared feed fetcher
func NewController(fetcher *fetchcache.Fetcher[[]models.Activity], loader Loader, channel Channel, viewer Viewer) *Controller {
	return &Controller{
		fetcher: fetcher,
		loader:  loader,
		channel: channel,
		viewer:  viewer,
		rec:     reconcile.New(fetcher.Store(), viewer.ID),
		visible: true,
	}
}

// Active returns the selected tab
func (c *Controller) Active() Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Mount prepares the page with initial as the active tab. The global cache
// is always invalidated, personal and shelves only when they are the initial
// tab.
func (c *Controller) Mount(ctx context.Context, initial Tab) ([]models.Activity, error) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil, errors.New("feed controller already mounted")
	}
	c.mounted = true
	store := c.fetcher.Store()
	store.Invalidate(TabGlobal.Feed().Key())
	if initial.RequiresAuth() {
		store.Invalidate(initial.Feed().Key())
	}
	for _, room := range AlwaysOnRooms() {
		c.channel.JoinRoom(room)
	}
	c.mu.Unlock()

	return c.Activate(ctx, initial)
}

// Activate switches to tab and returns its feed. Reconciler handlers are
// rebound even when tab needs a signed in viewer, the always-on feeds keep
// merging events. The previous tab room is left unless it is always on.
func (c *Controller) Activate(ctx context.Context, tab Tab) ([]models.Activity, error) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return nil, errors.New("feed controller not mounted")
	}
	tr := Plan(c.joined, tab, c.viewer.Authenticated())
	for _, room := range tr.Leave {
		c.channel.LeaveRoom(room)
	}
	if c.dispose != nil {
		c.dispose()
	}
	c.dispose = c.rec.Bind(c.channel)
	c.active = tab
	if tr.AuthRequired {
		c.joined = ""
		c.mu.Unlock()
		jww.DEBUG.Printf("feed %s needs a signed in viewer", tab)
		return nil, ErrAuthRequired
	}
	for _, room := range tr.Join {
		c.channel.JoinRoom(room)
	}
	c.joined = tab
	c.mu.Unlock()

	return c.fetcher.Fetch(ctx, tab.Feed().Key(), c.load(tab))
}

// SetVisible records page visibility. Becoming visible refetches the active
// feed even when the cache is fresh, to repair events missed while hidden.
func (c *Controller) SetVisible(ctx context.Context, visible bool) ([]models.Activity, error) {
	c.mu.Lock()
	wasVisible := c.visible
	c.visible = visible
	tab := c.active
	mounted := c.mounted
	c.mu.Unlock()

	if !mounted || wasVisible || !visible {
		return nil, nil
	}
	if tab.RequiresAuth() && !c.viewer.Authenticated() {
		return nil, ErrAuthRequired
	}
	jww.DEBUG.Printf("page visible again, refetching %s", tab)
	return c.fetcher.Refetch(ctx, tab.Feed().Key(), c.load(tab))
}

// Refresh refetches the active feed
func (c *Controller) Refresh(ctx context.Context) ([]models.Activity, error) {
	tab := c.Active()
	if tab.RequiresAuth() && !c.viewer.Authenticated() {
		return nil, ErrAuthRequired
	}
	return c.fetcher.Refetch(ctx, tab.Feed().Key(), c.load(tab))
}

// Unmount disposes every handler and leaves all rooms, always-on ones
// included
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if c.dispose != nil {
		c.dispose()
		c.dispose = nil
	}
	if c.joined != "" && !c.joined.AlwaysOn() {
		c.channel.LeaveRoom(c.joined.Room())
	}
	for _, room := range AlwaysOnRooms() {
		c.channel.LeaveRoom(room)
	}
	c.mounted = false
	c.joined = ""
	c.active = ""
}

// View returns the cached feed of tab
func (c *Controller) View(tab Tab) ([]models.Activity, bool) {
	return c.fetcher.Store().Get(tab.Feed().Key())
}

func (c *Controller) load(tab Tab) fetchcache.LoadFunc[[]models.Activity] {
	return func(ctx context.Context) ([]models.Activity, error) {
		activities, err := c.loader.Stream(ctx, string(tab))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s feed", tab)
		}
		return activities, nil
	}
}
