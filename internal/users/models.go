package users

import (
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/workspace"
)

// UserProfile is the API shape of a user_profiles row plus its grants and memberships.
// Profiles are never deleted, only deactivated.
type UserProfile struct {
	ID             string                 `json:"id"`
	Email          string                 `json:"email"`
	FullName       string                 `json:"fullName"`
	Role           rbac.Role              `json:"role"`
	IsActive       bool                   `json:"isActive"`
	LockedUntil    *time.Time             `json:"lockedUntil,omitempty"`
	LastLoginAt    *time.Time             `json:"lastLoginAt,omitempty"`
	LastActivityAt *time.Time             `json:"lastActivityAt,omitempty"`
	Permissions    []string               `json:"permissions"`
	Memberships    []workspace.Membership `json:"memberships,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// IsLocked reports whether the lock timestamp lies after now.
func (p UserProfile) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// MembershipFor returns the membership in workspaceID, if any.
func (p UserProfile) MembershipFor(workspaceID string) (workspace.Membership, bool) {
	for _, m := range p.Memberships {
		if m.WorkspaceID == workspaceID {
			return m, true
		}
	}
	return workspace.Membership{}, false
}

type ListFilter struct {
	Search      string `form:"search" validate:"max=200"`
	Role        string `form:"role" validate:"omitempty,role"`
	Active      *bool  `form:"active"`
	WorkspaceID string `form:"workspaceId" validate:"omitempty,uuid"`
	Limit       int    `form:"limit" validate:"min=0,max=200"`
	Offset      int    `form:"offset" validate:"min=0"`

	// ids restricts the result to workspace members; resolved by the service.
	ids []string
}

type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Admins int `json:"admins"`
	Locked int `json:"locked"`
}

type Invitation struct {
	ID          string     `json:"id"`
	Token       string     `json:"token,omitempty"`
	Email       string     `json:"email"`
	Role        rbac.Role  `json:"role"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	InvitedBy   string     `json:"invitedBy,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type InviteRequest struct {
	Email       string        `json:"email" validate:"required,email"`
	Role        string        `json:"role" validate:"required,role"`
	WorkspaceID string        `json:"workspaceId" validate:"omitempty,uuid"`
	TTL         time.Duration `json:"-"`
}

type AcceptRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,max=120"`
}

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,max=120"`
}
