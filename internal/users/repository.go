package users

import (
	"context"
	"time"

	"crm-platform/internal/rbac"
)

type Repository interface {
	GetProfile(ctx context.Context, id string) (UserProfile, error)
	ListProfiles(ctx context.Context, f ListFilter) ([]UserProfile, error)
	Stats(ctx context.Context, f ListFilter, now time.Time) (Stats, error)
	CountProfiles(ctx context.Context) (int, error)
	InsertProfile(ctx context.Context, p UserProfile) error

	UpdateRole(ctx context.Context, id string, role rbac.Role, now time.Time) error
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
	SetLockedUntil(ctx context.Context, id string, until *time.Time, now time.Time) error
	TouchLogin(ctx context.Context, id string, now time.Time) error

	GrantPermission(ctx context.Context, id, permission, grantedBy string, now time.Time) error
	RevokePermission(ctx context.Context, id, permission string) error

	InsertInvitation(ctx context.Context, inv Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id string, now time.Time) error
	ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error)
}
