package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// SessionID ties an access token to its refresh session so sign-out can revoke both.
// WorkspaceID may be empty for users without any membership yet.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	SessionID   string    `json:"sid"`
	TokenType   TokenType `json:"token_type"`
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID      string
	Email       string
	WorkspaceID string
	Role        string
	SessionID   string
}
