package extraction

import (
	"context"
	"sort"
	"sync"

	"crm-platform/internal/store"
)

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Extraction
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Extraction{}} }

func (r *MemoryRepo) Insert(ctx context.Context, e Extraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[e.ID]; ok {
		return store.ErrConflict
	}
	e.Fields = append([]Field(nil), e.Fields...)
	r.rows[e.ID] = e
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Extraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.WorkspaceID != workspaceID {
		return Extraction{}, store.ErrNotFound
	}
	e.Fields = append([]Field(nil), e.Fields...)
	return e, nil
}

func (r *MemoryRepo) List(ctx context.Context, workspaceID string, limit int) ([]Extraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Extraction, 0)
	for _, e := range r.rows {
		if e.WorkspaceID == workspaceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkApplied(ctx context.Context, workspaceID, id, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.WorkspaceID != workspaceID {
		return store.ErrNotFound
	}
	if e.Status == StatusApplied {
		return store.ErrConflict
	}
	e.Status = StatusApplied
	e.ClientID = clientID
	r.rows[id] = e
	return nil
}
