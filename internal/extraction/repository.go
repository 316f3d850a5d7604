package extraction

import "context"

type Repository interface {
	Insert(ctx context.Context, e Extraction) error
	Get(ctx context.Context, workspaceID, id string) (Extraction, error)
	List(ctx context.Context, workspaceID string, limit int) ([]Extraction, error)
	// MarkApplied sets the client and the applied status. It fails with ErrConflict
	// when the record was already applied.
	MarkApplied(ctx context.Context, workspaceID, id, clientID string) error
}
