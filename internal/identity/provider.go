// Package identity is the identity provider: password sign-in, token sessions and
// auth-state-change notifications.
package identity

import (
	"context"
	"errors"
	"time"

	"crm-platform/internal/rbac"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNoSession means the presented token is missing, expired or revoked.
	ErrNoSession    = errors.New("no active session")
	ErrLocked       = errors.New("account temporarily locked after repeated failed sign-ins")
	ErrWeakPassword = errors.New("password must be between 8 and 72 characters")
)

// Metadata is stored with the credentials and is the fallback profile source.
type Metadata struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`

	// TokenSessionID and TokenWorkspaceID describe the token the user was resolved from.
	TokenSessionID   string `json:"-"`
	TokenWorkspaceID string `json:"-"`
}

type Session struct {
	ID               string    `json:"-"`
	UserID           string    `json:"userId"`
	WorkspaceID      string    `json:"workspaceId,omitempty"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

type Event struct {
	Type    EventType
	User    User
	Session *Session
	// PreviousSessionID is set on token_refreshed to the rotated-out session.
	PreviousSessionID string
}

// Listener receives auth state changes synchronously, after the change is stored.
type Listener func(ctx context.Context, e Event)

type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, User, error)
	GetUser(ctx context.Context, accessToken string) (User, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (Session, User, error)
	IssueForWorkspace(ctx context.Context, accessToken, workspaceID string) (Session, error)
	SignUp(ctx context.Context, email, password string, meta Metadata) (User, error)
	OnAuthStateChange(fn Listener) (unsubscribe func())
}

// RoleOf returns the metadata role, defaulting to member.
func (u User) RoleOf() rbac.Role {
	r, err := rbac.ParseRole(u.Metadata.Role)
	if err != nil {
		return rbac.RoleMember
	}
	return r
}
