package apiclient

import (
	"context"
	"net/http"

	"github.com/anonto42/shelfstream/internal/models"
)

// Book fetches a single book
func (c *Client) Book(ctx context.Context, id string) (models.Book, error) {
	var b models.Book
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/books/" + escape(id)}, &b)
	return b, err
}

// BookComments lists the comments of a book
func (c *Client) BookComments(ctx context.Context, bookID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/books/" + escape(bookID) + "/comments"}, &out)
	return out, err
}

// BookReviews lists the reviews of a book
func (c *Client) BookReviews(ctx context.Context, bookID string) ([]models.Review, error) {
	var out []models.Review
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/books/" + escape(bookID) + "/reviews"}, &out)
	return out, err
}

// PostBookComment comments on a book
func (c *Client) PostBookComment(ctx context.Context, bookID string, req models.CreateCommentRequest) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/books/" + escape(bookID) + "/comments", body: req, auth: private}, &out)
	return out, err
}

// PostBookReview reviews a book
func (c *Client) PostBookReview(ctx context.Context, bookID string, req models.CreateReviewRequest) (models.Review, error) {
	var out models.Review
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/books/" + escape(bookID) + "/reviews", body: req, auth: private}, &out)
	return out, err
}

// DeleteComment deletes a comment. moderate selects the admin route, which
// lets administrators and moderators remove other people's comments.
func (c *Client) DeleteComment(ctx context.Context, id string, moderate bool) error {
	path := "/api/comments/" + escape(id)
	if moderate {
		path = "/api/admin/comments/" + escape(id)
	}
	return c.do(ctx, request{method: http.MethodDelete, path: path, auth: private}, nil)
}

// React toggles emoji on the target of req and returns the new aggregate
func (c *Client) React(ctx context.Context, req models.ReactionRequest) (models.ReactionResponse, error) {
	var out models.ReactionResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/reactions", body: req, auth: private}, &out)
	return out, err
}

// News fetches a news item
func (c *Client) News(ctx context.Context, id string) (models.News, error) {
	var out models.News
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/news/" + escape(id)}, &out)
	return out, err
}

// NewsComments lists comments on a news item
func (c *Client) NewsComments(ctx context.Context, newsID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/news/" + escape(newsID) + "/comments"}, &out)
	return out, err
}

// PostNewsComment comments on a news item
func (c *Client) PostNewsComment(ctx context.Context, newsID string, req models.CreateCommentRequest) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/news/" + escape(newsID) + "/comments", body: req, auth: private}, &out)
	return out, err
}

// NewsReactions lists the reaction aggregate of a news item
func (c *Client) NewsReactions(ctx context.Context, newsID string) ([]models.Reaction, error) {
	var out []models.Reaction
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/news/" + escape(newsID) + "/reactions"}, &out)
	return out, err
}

// ReactToNews toggles emoji on a news item
func (c *Client) ReactToNews(ctx context.Context, newsID, emoji string) (models.ReactionResponse, error) {
	var out models.ReactionResponse
	body := map[string]string{"emoji": emoji}
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/news/" + escape(newsID) + "/reactions", body: body, auth: private}, &out)
	return out, err
}

// Shelves lists the viewer's shelves
func (c *Client) Shelves(ctx context.Context) ([]models.Shelf, error) {
	var out []models.Shelf
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/shelves", auth: private}, &out)
	return out, err
}

// CreateShelf creates a shelf owned by the viewer
func (c *Client) CreateShelf(ctx context.Context, name string) (models.Shelf, error) {
	var out models.Shelf
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/shelves", body: models.CreateShelfRequest{Name: name}, auth: private}, &out)
	return out, err
}

// AddBookToShelf puts bookID on shelfID
func (c *Client) AddBookToShelf(ctx context.Context, shelfID, bookID string) (models.Shelf, error) {
	var out models.Shelf
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/shelves/" + escape(shelfID) + "/books",
		body:   models.AddBookRequest{BookID: bookID},
		auth:   private,
	}, &out)
	return out, err
}
