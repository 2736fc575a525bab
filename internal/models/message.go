package models

import "time"

// UserSummary is the compact user shape embedded in other resources
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Message represents a direct message inside a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	ReadStatus     bool      `json:"readStatus"`
}

// Conversation represents a direct-message thread. OtherUser stays nil until
// the peer has been resolved.
type Conversation struct {
	ID          string       `json:"id"`
	OtherUser   *UserSummary `json:"otherUser"`
	LastMessage *Message     `json:"lastMessage,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	UnreadCount int          `json:"unreadCount"`
}

// SendMessageRequest is the body of POST /api/messages
type SendMessageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required,min=1,max=4000"`
}

// CreateConversationRequest is the body of POST /api/conversations
type CreateConversationRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ConversationParticipant links a user to a conversation. The messaging
// backend writes these rows; the stream gateway only reads them.
type ConversationParticipant struct {
	ConversationID string    `json:"conversation_id" gorm:"primaryKey;size:64"`
	UserID         string    `json:"user_id" gorm:"primaryKey;size:64;index"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }
