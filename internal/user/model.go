package user

import (
	"context"
	"time"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID         string    `json:"id"`
	ExternalID int64     `json:"tg_id"`
	Username   string    `json:"username,omitempty"`
	Name       string    `json:"name,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists users keyed by their external messaging id.
type Store interface {
	// EnsureUser returns the user with u.ExternalID, creating it from u when
	// absent and refreshing username and name when present.
	EnsureUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*User, error)
	UpdateName(ctx context.Context, id, name string) error
	SetRole(ctx context.Context, externalID int64, role string) error
}
