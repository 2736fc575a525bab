package apiclient

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/anonto42/shelfstream/internal/models"
)

// feeds that require a signed in viewer
var privateFeeds = map[string]bool{"personal": true, "shelves": true}

// Stream fetches one activity feed: global, personal, shelves or last-actions
func (c *Client) Stream(ctx context.Context, feed string) ([]models.Activity, error) {
	switch feed {
	case "global", "personal", "shelves", "last-actions":
	default:
		return nil, errors.Errorf("unknown feed %q", feed)
	}
	auth := public
	if privateFeeds[feed] {
		auth = private
	}
	var resp models.FeedResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/stream/" + feed, auth: auth}, &resp); err != nil {
		return nil, err
	}
	if resp.Activities == nil {
		resp.Activities = []models.Activity{}
	}
	return resp.Activities, nil
}

// PublishActivity posts a new activity to the stream service
func (c *Client) PublishActivity(ctx context.Context, req models.PublishActivityRequest) (models.Activity, error) {
	var a models.Activity
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/stream/activities", body: req, auth: private}, &a)
	return a, err
}
