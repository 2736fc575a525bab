package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// AccessLevel is the application-wide privilege of a user
type AccessLevel string

const (
	AccessUser      AccessLevel = "user"
	AccessModerator AccessLevel = "moderator"
	AccessAdmin     AccessLevel = "admin"
)

// CanModerate reports whether the level may delete other people's content
func (a AccessLevel) CanModerate() bool {
	return a == AccessAdmin || a == AccessModerator
}

// Profile is the signed-in user's own profile
type Profile struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Language    string      `json:"language,omitempty"`
	AccessLevel AccessLevel `json:"accessLevel"`
}

// AdminUser is a row of the admin user listing
type AdminUser struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	AccessLevel AccessLevel `json:"accessLevel"`
}

// AdminUserPage is one page of GET /api/admin/users
type AdminUserPage struct {
	Users      []AdminUser `json:"users"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
	Total      int         `json:"total"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	AccessLevel AccessLevel `json:"access_level,omitempty"`
	jwt.RegisteredClaims
}
