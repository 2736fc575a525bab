// Package reconcile applies real-time stream events to cached feeds.
//
// Every merge function is pure: it returns a new slice and leaves its input
// untouched, so a view that still holds the previous slice never sees a half
// applied change. Applying the same event twice yields the same feed as
// applying it once.
package reconcile

import (
	"github.com/anonto42/shelfstream/internal/models"
)

// Insert prepends a to view unless an entry with the same ID is present.
// Feeds are newest first.
func Insert(view []models.Activity, a models.Activity) ([]models.Activity, bool) {
	for _, existing := range view {
		if existing.ID == a.ID {
			return view, false
		}
	}
	next := make([]models.Activity, 0, len(view)+1)
	next = append(next, a)
	next = append(next, view...)
	return next, true
}

// Update replaces the entry with a's ID in place. Unknown IDs are ignored.
func Update(view []models.Activity, a models.Activity) ([]models.Activity, bool) {
	for i, existing := range view {
		if existing.ID != a.ID {
			continue
		}
		next := make([]models.Activity, len(view))
		copy(next, view)
		next[i] = a
		return next, true
	}
	return view, false
}

// Delete removes every entry whose EntityID is entityID
func Delete(view []models.Activity, entityID string) ([]models.Activity, bool) {
	next := make([]models.Activity, 0, len(view))
	for _, a := range view {
		if a.EntityID != entityID {
			next = append(next, a)
		}
	}
	if len(next) == len(view) {
		return view, false
	}
	return next, true
}

// matchesReaction applies the per-type matching rule of a reaction update.
// Comment activities in some feeds are keyed by the comment itself, so the
// activity ID is also accepted. News must also be typed news because book and
// news ids share a namespace.
func matchesReaction(a models.Activity, ev models.ReactionUpdate) bool {
	switch ev.EntityType {
	case models.TargetComment:
		return a.EntityID == ev.EntityID || (ev.CommentID != "" && a.ID == ev.CommentID)
	case models.TargetReview:
		return a.EntityID == ev.EntityID
	case models.TargetNews:
		return a.EntityID == ev.EntityID && a.Type == models.ActivityNews
	}
	return false
}

// ApplyReactions replaces metadata.reactions on every matching entry and
// nothing else. Counts always come from the event. When the event names an
// actor other than viewerID the viewer's own userReacted flags are kept,
// since the server flag describes the actor.
func ApplyReactions(view []models.Activity, ev models.ReactionUpdate, viewerID string) ([]models.Activity, bool) {
	var next []models.Activity
	for i, a := range view {
		if !matchesReaction(a, ev) {
			continue
		}
		if next == nil {
			next = make([]models.Activity, len(view))
			copy(next, view)
		}
		reactions := ev.Reactions
		if ev.UserID != "" && ev.UserID != viewerID {
			reactions = keepViewerFlags(a.Metadata.Reactions(), ev.Reactions)
		}
		md := a.Metadata.Clone()
		md["reactions"] = copyReactions(reactions)
		a.Metadata = md
		next[i] = a
	}
	if next == nil {
		return view, false
	}
	return next, true
}

func keepViewerFlags(previous, incoming []models.Reaction) []models.Reaction {
	mine := make(map[string]bool, len(previous))
	for _, r := range previous {
		if r.UserReacted {
			mine[r.Emoji] = true
		}
	}
	out := make([]models.Reaction, len(incoming))
	for i, r := range incoming {
		r.UserReacted = mine[r.Emoji] && r.Count > 0
		out[i] = r
	}
	return out
}

func copyReactions(in []models.Reaction) []models.Reaction {
	out := make([]models.Reaction, len(in))
	copy(out, in)
	return out
}

// matchesCounter matches by entity, news or book id and the declared type
func matchesCounter(a models.Activity, ev models.CounterUpdate) bool {
	if a.Type != ev.EntityType {
		return false
	}
	if a.EntityID == ev.EntityID {
		return true
	}
	if a.NewsID != nil && *a.NewsID == ev.EntityID {
		return true
	}
	return a.BookID != nil && *a.BookID == ev.EntityID
}

// ApplyCounters overwrites the counters carried by ev on matching entries.
// Counters missing from the event are left as they are, never zeroed.
func ApplyCounters(view []models.Activity, ev models.CounterUpdate) ([]models.Activity, bool) {
	counters := knownCounters(ev.Counters)
	if len(counters) == 0 {
		return view, false
	}
	var next []models.Activity
	for i, a := range view {
		if !matchesCounter(a, ev) {
			continue
		}
		if next == nil {
			next = make([]models.Activity, len(view))
			copy(next, view)
		}
		md := a.Metadata.Clone()
		for k, v := range counters {
			md[k] = v
		}
		a.Metadata = md
		next[i] = a
	}
	if next == nil {
		return view, false
	}
	return next, true
}

func knownCounters(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for _, k := range models.CounterKeys {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	return out
}
