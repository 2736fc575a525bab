package reconcile

import (
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/fetchcache"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/socket"
)

// Feed names one cached activity view
type Feed string

const (
	FeedGlobal      Feed = "global"
	FeedPersonal    Feed = "personal"
	FeedShelves     Feed = "shelves"
	FeedLastActions Feed = "last-actions"
)

// Feeds lists every feed in a fixed order
var Feeds = []Feed{FeedGlobal, FeedPersonal, FeedShelves, FeedLastActions}

// StreamKind is the fetchcache kind used for activity feeds
const StreamKind = "stream"

// Key returns the cache key of feed f
func (f Feed) Key() fetchcache.Key { return fetchcache.Key{Kind: StreamKind, Scope: string(f)} }

// Route decides which feeds receive a newly inserted activity. Global and
// last-actions always do; personal only for the viewer's own activities;
// shelves for anything tied to a book. The shelf filter itself runs at read
// time, so this over-includes on purpose.
func Route(a models.Activity, viewerID string) []Feed {
	feeds := []Feed{FeedGlobal, FeedLastActions}
	if viewerID != "" && a.UserID == viewerID {
		feeds = append(feeds, FeedPersonal)
	}
	if a.BookID != nil {
		feeds = append(feeds, FeedShelves)
	}
	return feeds
}

// Reconciler applies socket events to the feed caches in a Store. Each view
// is updated atomically on its own; a feed that was never fetched is not
// created by an event.
type Reconciler struct {
	store  *fetchcache.Store[[]models.Activity]
	viewer func() string
}

// New creates a Reconciler. viewer returns the current viewer id, empty when
// signed out.
func New(store *fetchcache.Store[[]models.Activity], viewer func() string) *Reconciler {
	if viewer == nil {
		viewer = func() string { return "" }
	}
	return &Reconciler{store: store, viewer: viewer}
}

func (r *Reconciler) apply(f Feed, merge func([]models.Activity) ([]models.Activity, bool)) bool {
	return r.store.Update(f.Key(), func(old []models.Activity, ok bool) ([]models.Activity, bool) {
		if !ok {
			return old, false
		}
		return merge(old)
	})
}

func (r *Reconciler) applyAll(merge func([]models.Activity) ([]models.Activity, bool)) int {
	changed := 0
	for _, f := range Feeds {
		if r.apply(f, merge) {
			changed++
		}
	}
	return changed
}

// NewActivity inserts a into every feed Route selects
func (r *Reconciler) NewActivity(a models.Activity) []Feed {
	var changed []Feed
	for _, f := range Route(a, r.viewer()) {
		if r.apply(f, func(view []models.Activity) ([]models.Activity, bool) { return Insert(view, a) }) {
			changed = append(changed, f)
		}
	}
	return changed
}

// LastAction inserts a into the last-actions feed only
func (r *Reconciler) LastAction(a models.Activity) bool {
	return r.apply(FeedLastActions, func(view []models.Activity) ([]models.Activity, bool) { return Insert(view, a) })
}

// ActivityUpdated replaces a wherever it is cached
func (r *Reconciler) ActivityUpdated(a models.Activity) int {
	return r.applyAll(func(view []models.Activity) ([]models.Activity, bool) { return Update(view, a) })
}

// ActivityDeleted removes every entry for entityID from all feeds
func (r *Reconciler) ActivityDeleted(entityID string) int {
	return r.applyAll(func(view []models.Activity) ([]models.Activity, bool) { return Delete(view, entityID) })
}

// ReactionUpdate replaces reactions of matching entries in all feeds
func (r *Reconciler) ReactionUpdate(ev models.ReactionUpdate) int {
	viewer := r.viewer()
	return r.applyAll(func(view []models.Activity) ([]models.Activity, bool) {
		return ApplyReactions(view, ev, viewer)
	})
}

// CounterUpdate overwrites counters of matching entries in all feeds
func (r *Reconciler) CounterUpdate(ev models.CounterUpdate) int {
	return r.applyAll(func(view []models.Activity) ([]models.Activity, bool) { return ApplyCounters(view, ev) })
}

// Subscriber is the part of the socket adapter the reconciler needs
type Subscriber interface {
	OnEvent(event string, fn socket.Handler) func()
}

// Bind subscribes the reconciler to every stream event on sub and returns a
// disposer for all of them. sub may be a nil adapter.
func (r *Reconciler) Bind(sub Subscriber) (dispose func()) {
	disposers := []func(){
		sub.OnEvent(models.EventNewActivity, func(data json.RawMessage) {
			if a, ok := socket.Decode[models.Activity](models.EventNewActivity, data); ok {
				feeds := r.NewActivity(a)
				jww.TRACE.Printf("activity %s merged into %v", a.ID, feeds)
			}
		}),
		sub.OnEvent(models.EventLastAction, func(data json.RawMessage) {
			if a, ok := socket.Decode[models.Activity](models.EventLastAction, data); ok {
				r.LastAction(a)
			}
		}),
		sub.OnEvent(models.EventActivityUpdated, func(data json.RawMessage) {
			if a, ok := socket.Decode[models.Activity](models.EventActivityUpdated, data); ok {
				r.ActivityUpdated(a)
			}
		}),
		sub.OnEvent(models.EventActivityDeleted, func(data json.RawMessage) {
			if ev, ok := socket.Decode[models.ActivityDeleted](models.EventActivityDeleted, data); ok {
				r.ActivityDeleted(ev.EntityID)
			}
		}),
		sub.OnEvent(models.EventReactionUpdate, func(data json.RawMessage) {
			if ev, ok := socket.Decode[models.ReactionUpdate](models.EventReactionUpdate, data); ok {
				r.ReactionUpdate(ev)
			}
		}),
		sub.OnEvent(models.EventCounterUpdate, func(data json.RawMessage) {
			if ev, ok := socket.Decode[models.CounterUpdate](models.EventCounterUpdate, data); ok {
				r.CounterUpdate(ev)
			}
		}),
	}
	return func() {
		for _, d := range disposers {
			d()
		}
	}
}
