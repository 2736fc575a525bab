package models

import (
	"encoding/json"
	"time"
)

// Socket event names
const (
	EventNewActivity     = "stream:new-activity"
	EventActivityUpdated = "stream:activity-updated"
	EventActivityDeleted = "stream:activity-deleted"
	EventReactionUpdate  = "stream:reaction-update"
	EventCounterUpdate   = "stream:counter-update"
	EventLastAction      = "stream:last-action"

	EventMessageNew     = "message:new"
	EventMessageDeleted = "message:deleted"
	EventUserTyping     = "user:typing"
	EventNotification   = "notification:new"

	EventChannelMessageNew     = "channel:message:new"
	EventChannelMessageDeleted = "channel:message:deleted"

	// EventConnect and EventDisconnect are raised locally by the socket
	// adapter, they never travel over the wire
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventError      = "error"
)

// Stream rooms
const (
	RoomGlobal      = "stream:global"
	RoomPersonal    = "stream:personal"
	RoomShelves     = "stream:shelves"
	RoomLastActions = "stream:last-actions"
)

// Room control prefixes. Joining the global stream is the event
// "join:stream:global".
const (
	JoinPrefix  = "join:"
	LeavePrefix = "leave:"
)

// ConversationPrefix starts the room carrying typing indicators of a
// conversation
const ConversationPrefix = "conversation:"

// ConversationRoom returns the typing room of conversation id
func ConversationRoom(id string) string { return ConversationPrefix + id }

// JoinEvent returns the control event that joins room
func JoinEvent(room string) string { return JoinPrefix + room }

// LeaveEvent returns the control event that leaves room
func LeaveEvent(room string) string { return LeavePrefix + room }

// Envelope is the frame exchanged over the socket in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// ReactionUpdate is the payload of stream:reaction-update. UserID names the
// actor when the server knows it; Reactions is the server aggregate.
type ReactionUpdate struct {
	EntityID   string         `json:"entityId"`
	EntityType ReactionTarget `json:"entityType"`
	CommentID  string         `json:"commentId,omitempty"`
	ReviewID   string         `json:"reviewId,omitempty"`
	NewsID     string         `json:"newsId,omitempty"`
	Reactions  []Reaction     `json:"reactions"`
	Action     string         `json:"action"`
	UserID     string         `json:"userId,omitempty"`
}

// CounterUpdate is the payload of stream:counter-update. Only counters
// present in the map are applied.
type CounterUpdate struct {
	EntityID   string           `json:"entityId" validate:"required"`
	EntityType ActivityType     `json:"entityType" validate:"required,oneof=news book comment review user_action"`
	Counters   map[string]int64 `json:"counters" validate:"required,min=1,dive,keys,oneof=comment_count reaction_count view_count review_count,endkeys,min=0"`
}

// counterFields maps the top-level spellings of a counter to its key
var counterFields = map[string]string{
	CommentCount:    CommentCount,
	"commentCount":  CommentCount,
	ReactionCount:   ReactionCount,
	"reactionCount": ReactionCount,
	ViewCount:       ViewCount,
	"viewCount":     ViewCount,
	ReviewCount:     ReviewCount,
	"reviewCount":   ReviewCount,
}

// UnmarshalJSON accepts counters nested under "counters" as well as top-level
// fields such as "commentCount" or "comment_count". Nested values win.
func (u *CounterUpdate) UnmarshalJSON(data []byte) error {
	type wire CounterUpdate
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for name, raw := range fields {
		key, ok := counterFields[name]
		if !ok {
			continue
		}
		if _, nested := w.Counters[key]; nested {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		if w.Counters == nil {
			w.Counters = make(map[string]int64)
		}
		w.Counters[key] = n
	}
	*u = CounterUpdate(w)
	return nil
}

// ActivityDeleted is the payload of stream:activity-deleted
type ActivityDeleted struct {
	EntityID string `json:"entityId"`
}

// MessageDeleted is the payload of message:deleted
type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// ChannelMessageDeleted is the payload of channel:message:deleted
type ChannelMessageDeleted struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

// Typing is the payload of user:typing
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Notification represents a user notification pushed with notification:new
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // comment, review, reaction, message, group
	ActorID     string    `json:"actorId"`
	RecipientID string    `json:"recipientId"`
	TargetID    string    `json:"targetId"`
	TargetType  string    `json:"targetType"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}
