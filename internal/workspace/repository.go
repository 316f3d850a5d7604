package workspace

import "context"

type Repository interface {
	Insert(ctx context.Context, w Workspace) error
	Get(ctx context.Context, id string) (Workspace, error)
	ListAll(ctx context.Context) ([]Workspace, error)

	UpsertMember(ctx context.Context, m Membership) error
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	ListForUser(ctx context.Context, userID string) ([]Membership, error)
	ListMembers(ctx context.Context, workspaceID string) ([]Membership, error)
}
