package clients

import "context"

// Repository is scoped by workspace on every call.
type Repository interface {
	Insert(ctx context.Context, c Client) error
	Get(ctx context.Context, workspaceID, id string) (Client, error)
	List(ctx context.Context, f ListFilter) ([]Client, error)
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, workspaceID, id string) error
	Stats(ctx context.Context, workspaceID string) (Stats, error)
}
