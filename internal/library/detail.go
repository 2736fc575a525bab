// Package library covers the book pages: detail loading, shelves, comments
// and reactions.
package library

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/shelfstream/internal/models"
)

// BookAPI is the part of the REST client a book page reads from
type BookAPI interface {
	Book(ctx context.Context, id string) (models.Book, error)
	BookComments(ctx context.Context, bookID string) ([]models.Comment, error)
	BookReviews(ctx context.Context, bookID string) ([]models.Review, error)
}

// BookDetail is a book with its discussion. Comments and reviews resolve
// independently, a failure of one leaves the other intact.
type BookDetail struct {
	Book        models.Book
	Comments    []models.Comment
	Reviews     []models.Review
	CommentsErr error
	ReviewsErr  error
}

// Partial reports whether some part failed to load
func (d BookDetail) Partial() bool { return d.CommentsErr != nil || d.ReviewsErr != nil }

// LoadBookDetail fetches the book, then its comments and reviews
// concurrently. Only a failure to load the book itself is returned as error.
func LoadBookDetail(ctx context.Context, api BookAPI, bookID string) (BookDetail, error) {
	book, err := api.Book(ctx, bookID)
	if err != nil {
		return BookDetail{}, errors.Wrapf(err, "failed to load book %s", bookID)
	}
	d := BookDetail{Book: book}

	var g errgroup.Group
	g.Go(func() error {
		comments, err := api.BookComments(ctx, bookID)
		if err != nil {
			d.CommentsErr = errors.Wrap(err, "failed to load comments")
			jww.WARN.Printf("book %s: %v", bookID, d.CommentsErr)
			return nil
		}
		d.Comments = comments
		return nil
	})
	g.Go(func() error {
		reviews, err := api.BookReviews(ctx, bookID)
		if err != nil {
			d.ReviewsErr = errors.Wrap(err, "failed to load reviews")
			jww.WARN.Printf("book %s: %v", bookID, d.ReviewsErr)
			return nil
		}
		d.Reviews = reviews
		return nil
	})
	_ = g.Wait()
	return d, nil
}

// SetCommentReactions replaces the reactions of comment id
func SetCommentReactions(comments []models.Comment, id string, reactions []models.Reaction) []models.Comment {
	out := append([]models.Comment(nil), comments...)
	for i := range out {
		if out[i].ID == id {
			out[i].Reactions = reactions
		}
	}
	return out
}

// SetReviewReactions replaces the reactions of review id
func SetReviewReactions(reviews []models.Review, id string, reactions []models.Reaction) []models.Review {
	out := append([]models.Review(nil), reviews...)
	for i := range out {
		if out[i].ID == id {
			out[i].Reactions = reactions
		}
	}
	return out
}
