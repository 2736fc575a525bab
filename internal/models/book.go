package models

import "time"

// Book represents an uploaded book. ShelfCount is maintained by the server
// only.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	UploaderID  string    `json:"uploaderId"`
	ShelfCount  int       `json:"shelfCount"`
	Rating      float64   `json:"rating"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Comment represents a comment on a book or news item
type Comment struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	User      UserSummary `json:"user"`
	Content   string      `json:"content"`
	Reactions []Reaction  `json:"reactions"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Review represents a rated review of a book
type Review struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	User      UserSummary `json:"user"`
	Rating    int         `json:"rating"`
	Content   string      `json:"content"`
	Reactions []Reaction  `json:"reactions"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// CreateReviewRequest defines the request body for creating a new review
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Content string `json:"content" validate:"max=5000"`
}

// News represents a news post
type News struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Reactions []Reaction `json:"reactions"`
	CreatedAt time.Time  `json:"createdAt"`
}
