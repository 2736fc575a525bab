// Package messaging keeps direct-message and group-channel state in sync with
// the API and the socket.
package messaging

import (
	"sort"

	"github.com/anonto42/shelfstream/internal/models"
)

// SortConversations returns convs ordered by UpdatedAt, newest first. Ties
// keep their relative order.
func SortConversations(convs []models.Conversation) []models.Conversation {
	out := append([]models.Conversation(nil), convs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// AppendMessage appends m unless a message with its id is already present
func AppendMessage(msgs []models.Message, m models.Message) ([]models.Message, bool) {
	for _, existing := range msgs {
		if existing.ID == m.ID {
			return msgs, false
		}
	}
	out := make([]models.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m), true
}

// RemoveMessage drops the message with id
func RemoveMessage(msgs []models.Message, id string) ([]models.Message, bool) {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	if len(out) == len(msgs) {
		return msgs, false
	}
	return out, true
}

// TouchConversation records m as the latest message of its conversation and
// resorts. An unknown conversation is added with a nil OtherUser until the
// list is reloaded. unread bumps the conversation's unread count.
func TouchConversation(convs []models.Conversation, m models.Message, unread bool) []models.Conversation {
	out := append([]models.Conversation(nil), convs...)
	idx := -1
	for i := range out {
		if out[i].ID == m.ConversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		out = append(out, models.Conversation{ID: m.ConversationID})
		idx = len(out) - 1
	}
	last := m
	c := out[idx]
	c.LastMessage = &last
	if m.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = m.CreatedAt
	}
	if unread {
		c.UnreadCount++
	}
	out[idx] = c
	return SortConversations(out)
}

// channel messages get the same treatment

func appendChannelMessage(msgs []models.ChannelMessage, m models.ChannelMessage) ([]models.ChannelMessage, bool) {
	for _, existing := range msgs {
		if existing.ID == m.ID {
			return msgs, false
		}
	}
	out := make([]models.ChannelMessage, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m), true
}

func removeChannelMessage(msgs []models.ChannelMessage, id string) ([]models.ChannelMessage, bool) {
	out := make([]models.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	if len(out) == len(msgs) {
		return msgs, false
	}
	return out, true
}
