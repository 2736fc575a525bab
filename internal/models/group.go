package models

import "time"

// GroupRole is the viewer's membership role in a group
type GroupRole string

const (
	RoleAdministrator GroupRole = "administrator"
	RoleModerator     GroupRole = "moderator"
	RoleMember        GroupRole = "member"
	RoleNone          GroupRole = "none"
)

// IsMember reports whether the role grants access to the group's channels
func (r GroupRole) IsMember() bool {
	return r == RoleAdministrator || r == RoleModerator || r == RoleMember
}

// GroupPrivacy is either public or private
type GroupPrivacy string

const (
	GroupPublic  GroupPrivacy = "public"
	GroupPrivate GroupPrivacy = "private"
)

// Group represents a reading group
type Group struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Privacy     GroupPrivacy `json:"privacy"`
	MemberCount int          `json:"memberCount"`
}

// Channel belongs to exactly one group
type Channel struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// ChannelMessage is a message posted in a group channel
type ChannelMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoleResponse is returned by GET /api/groups/:id/my-role
type RoleResponse struct {
	Role GroupRole `json:"role"`
}

// CreateGroupRequest is the body of POST /api/groups
type CreateGroupRequest struct {
	Name        string       `json:"name" validate:"required,min=2,max=80"`
	Description string       `json:"description,omitempty" validate:"max=500"`
	Privacy     GroupPrivacy `json:"privacy" validate:"required,oneof=public private"`
}
