package workspace

import (
	"time"

	"crm-platform/internal/rbac"
)

// Workspace is the tenant boundary. Every domain row carries a workspace_id.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// Membership links a user to a workspace with a per-workspace role.
type Membership struct {
	UserID        string    `json:"userId"`
	WorkspaceID   string    `json:"workspaceId"`
	WorkspaceName string    `json:"workspaceName,omitempty"`
	Role          rbac.Role `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CreateRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
	Slug string `json:"slug" validate:"omitempty,min=2,max=60"`
}
