package models

import (
	"strings"
	"time"
)

// Role is the closed set of membership roles.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMember:
		return RoleMember, true
	}
	return "", false
}

// Team is a shared workspace. OwnerID is pinned to ADMIN for the team's lifetime.
type Team struct {
	ID          string    `bson:"_id" json:"teamId"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	OwnerID     string    `bson:"ownerId" json:"ownerId"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// Member binds an identity to a team. WrappedTeamKey is opaque to the server.
type Member struct {
	TeamID         string    `bson:"teamId" json:"teamId"`
	UserID         string    `bson:"userId" json:"userId"`
	Role           Role      `bson:"role" json:"role"`
	WrappedTeamKey string    `bson:"wrappedTeamKey" json:"encryptedTeamKey"`
	JoinedAt       time.Time `bson:"joinedAt" json:"joinedAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}
