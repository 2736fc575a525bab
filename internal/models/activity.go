package models

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// ActivityType identifies what kind of event an activity records
type ActivityType string

const (
	ActivityNews       ActivityType = "news"
	ActivityBook       ActivityType = "book"
	ActivityComment    ActivityType = "comment"
	ActivityReview     ActivityType = "review"
	ActivityUserAction ActivityType = "user_action"
)

// Valid reports whether t is one of the known activity types
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityNews, ActivityBook, ActivityComment, ActivityReview, ActivityUserAction:
		return true
	}
	return false
}

// Counter keys carried in activity metadata
const (
	CommentCount  = "comment_count"
	ReactionCount = "reaction_count"
	ViewCount     = "view_count"
	ReviewCount   = "review_count"
)

// CounterKeys lists every counter a counter-update event may carry
var CounterKeys = []string{CommentCount, ReactionCount, ViewCount, ReviewCount}

// Activity represents one entry of an activity stream. The same activity can
// sit in several feeds at once but always with the same ID.
type Activity struct {
	ID           string       `json:"id" bson:"_id"`
	Type         ActivityType `json:"type" bson:"type"`
	EntityID     string       `json:"entityId" bson:"entity_id"` // commented/reviewed/news/book target
	UserID       string       `json:"userId" bson:"user_id"`     // actor
	TargetUserID *string      `json:"targetUserId,omitempty" bson:"target_user_id,omitempty"`
	NewsID       *string      `json:"newsId,omitempty" bson:"news_id,omitempty"`
	BookID       *string      `json:"bookId,omitempty" bson:"book_id,omitempty"`
	Metadata     Metadata     `json:"metadata" bson:"metadata"`
	CreatedAt    time.Time    `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" bson:"updated_at"`
}

// Metadata is the open map attached to an activity (counts, titles, reactions)
type Metadata map[string]any

// Clone returns a shallow copy of m. Merges replace values on the copy and
// never write into a map another view may still hold.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Reactions decodes metadata.reactions whatever shape it arrived in: a typed
// slice set by a merge, generic JSON values, or BSON documents.
func (m Metadata) Reactions() []Reaction {
	raw, ok := m["reactions"]
	if !ok || raw == nil {
		return nil
	}
	if typed, ok := raw.([]Reaction); ok {
		return typed
	}
	var out []Reaction
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil
	}
	if err := dec.Decode(raw); err != nil {
		return nil
	}
	return out
}

// Int reads a numeric metadata value regardless of how it was decoded
func (m Metadata) Int(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	}
	return 0, false
}

// PublishActivityRequest is the body accepted by the stream service to publish
// a new activity
type PublishActivityRequest struct {
	Type         ActivityType `json:"type" validate:"required,oneof=news book comment review user_action"`
	EntityID     string       `json:"entityId" validate:"required"`
	TargetUserID *string      `json:"targetUserId,omitempty" validate:"omitempty,min=1"`
	NewsID       *string      `json:"newsId,omitempty" validate:"omitempty,min=1"`
	BookID       *string      `json:"bookId,omitempty" validate:"omitempty,min=1"`
	Metadata     Metadata     `json:"metadata,omitempty"`
}

// UpdateActivityRequest replaces selected metadata keys of an activity
type UpdateActivityRequest struct {
	Metadata Metadata `json:"metadata" validate:"required"`
}

// FeedResponse wraps a page of activities
type FeedResponse struct {
	Activities []Activity `json:"activities"`
}
