package models

import "time"

// Reaction is the aggregate of one emoji on a parent (activity, comment,
// review or news item). Count comes from the server; UserReacted is relative
// to whoever is looking at it.
type Reaction struct {
	Emoji       string `json:"emoji" bson:"emoji"`
	Count       int    `json:"count" bson:"count"`
	UserReacted bool   `json:"userReacted" bson:"user_reacted"`
}

// ReactionTarget identifies what kind of parent a reaction belongs to
type ReactionTarget string

const (
	TargetComment ReactionTarget = "comment"
	TargetReview  ReactionTarget = "review"
	TargetNews    ReactionTarget = "news"
)

// ReactionRow is one user's reaction with one emoji, stored in PostgreSQL
type ReactionRow struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	UserID     string         `json:"user_id" gorm:"size:64;uniqueIndex:idx_reaction_unique"`
	TargetID   string         `json:"target_id" gorm:"size:64;index;uniqueIndex:idx_reaction_unique"`
	TargetType ReactionTarget `json:"target_type" gorm:"size:20;uniqueIndex:idx_reaction_unique"`
	Emoji      string         `json:"emoji" gorm:"size:32;uniqueIndex:idx_reaction_unique"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName keeps the table name stable across renames of the Go type
func (ReactionRow) TableName() string { return "reactions" }

// ReactionRequest is the body of POST /api/reactions. Exactly one of the
// target ids must be set.
type ReactionRequest struct {
	CommentID string `json:"commentId,omitempty" validate:"required_without_all=ReviewID NewsID,excluded_with=ReviewID NewsID"`
	ReviewID  string `json:"reviewId,omitempty" validate:"required_without_all=CommentID NewsID,excluded_with=CommentID NewsID"`
	NewsID    string `json:"newsId,omitempty" validate:"required_without_all=CommentID ReviewID,excluded_with=CommentID ReviewID"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

// Target resolves which parent the request points at
func (r ReactionRequest) Target() (string, ReactionTarget) {
	switch {
	case r.CommentID != "":
		return r.CommentID, TargetComment
	case r.ReviewID != "":
		return r.ReviewID, TargetReview
	default:
		return r.NewsID, TargetNews
	}
}

// ReactionResponse is returned by POST /api/reactions
type ReactionResponse struct {
	Action    string     `json:"action"` // added or removed
	Reactions []Reaction `json:"reactions"`
}
