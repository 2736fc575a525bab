package library

import (
	"context"

	"github.com/pkg/errors"

	"github.com/anonto42/shelfstream/internal/models"
)

// CommentAPI is the part of the REST client comment actions use
type CommentAPI interface {
	DeleteComment(ctx context.Context, id string, moderate bool) error
	React(ctx context.Context, req models.ReactionRequest) (models.ReactionResponse, error)
}

// DeleteComment removes a comment. Administrators and moderators go through
// the admin route so they can remove anyone's comment.
func DeleteComment(ctx context.Context, api CommentAPI, viewer models.AccessLevel, commentID string) error {
	if err := api.DeleteComment(ctx, commentID, viewer.CanModerate()); err != nil {
		return errors.Wrapf(err, "failed to delete comment %s", commentID)
	}
	return nil
}

// React toggles emoji on a comment, review or news item and returns the
// aggregate the server computed. Counts are never adjusted locally.
func React(ctx context.Context, api CommentAPI, target models.ReactionTarget, id, emoji string) (models.ReactionResponse, error) {
	req := models.ReactionRequest{Emoji: emoji}
	switch target {
	case models.TargetComment:
		req.CommentID = id
	case models.TargetReview:
		req.ReviewID = id
	case models.TargetNews:
		req.NewsID = id
	default:
		return models.ReactionResponse{}, errors.Errorf("cannot react to %q", target)
	}
	resp, err := api.React(ctx, req)
	if err != nil {
		return models.ReactionResponse{}, errors.Wrapf(err, "failed to react to %s %s", target, id)
	}
	if resp.Reactions == nil {
		resp.Reactions = []models.Reaction{}
	}
	return resp, nil
}
