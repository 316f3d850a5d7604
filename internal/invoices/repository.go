package invoices

import (
	"context"
	"time"
)

// Mutation changes a locked invoice. It reports whether anything changed.
type Mutation func(inv *Invoice) (bool, error)

type Repository interface {
	Insert(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, workspaceID, id string) (Invoice, error)
	List(ctx context.Context, f ListFilter, now time.Time) ([]Invoice, error)
	// Mutate applies fn to the invoice while holding its row lock and persists the result.
	Mutate(ctx context.Context, workspaceID, id string, fn Mutation) (Invoice, error)
	Stats(ctx context.Context, workspaceID string, now time.Time) (Stats, error)
}
