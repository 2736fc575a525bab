package apiclient

import (
	"context"
	"net/http"

	"github.com/anonto42/shelfstream/internal/models"
)

// Conversations lists the viewer's conversations
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/conversations", auth: private}, &out)
	return out, err
}

// CreateConversation opens (or returns the existing) conversation with userID
func (c *Client) CreateConversation(ctx context.Context, userID string) (models.Conversation, error) {
	var out models.Conversation
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/conversations",
		body:   models.CreateConversationRequest{UserID: userID},
		auth:   private,
	}, &out)
	return out, err
}

// ConversationMessages lists the messages of a conversation, oldest first
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/messages/conversation/" + escape(conversationID), auth: private}, &out)
	return out, err
}

// SendMessage posts a message
func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/messages", body: req, auth: private}, &out)
	return out, err
}

// MarkMessageRead marks a message read
func (c *Client) MarkMessageRead(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodPut, path: "/api/messages/" + escape(id) + "/read", auth: private}, nil)
}

// DeleteMessage deletes one of the viewer's messages
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/messages/" + escape(id), auth: private}, nil)
}

// Groups lists reading groups
func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var out []models.Group
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/groups"}, &out)
	return out, err
}

// CreateGroup creates a group administered by the viewer
func (c *Client) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (models.Group, error) {
	var out models.Group
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/groups", body: req, auth: private}, &out)
	return out, err
}

// GroupChannels lists the channels of a group
func (c *Client) GroupChannels(ctx context.Context, groupID string) ([]models.Channel, error) {
	var out []models.Channel
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/groups/" + escape(groupID) + "/channels", auth: private}, &out)
	return out, err
}

// JoinGroup makes the viewer a member of groupID
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/groups/" + escape(groupID) + "/join", auth: private}, nil)
}

// MyRole returns the viewer's role in groupID
func (c *Client) MyRole(ctx context.Context, groupID string) (models.GroupRole, error) {
	var out models.RoleResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/groups/" + escape(groupID) + "/my-role", auth: private}, &out); err != nil {
		return models.RoleNone, err
	}
	if out.Role == "" {
		return models.RoleNone, nil
	}
	return out.Role, nil
}

// ChannelMessages lists the messages of a channel
func (c *Client) ChannelMessages(ctx context.Context, channelID string) ([]models.ChannelMessage, error) {
	var out []models.ChannelMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/channels/" + escape(channelID) + "/messages", auth: private}, &out)
	return out, err
}
