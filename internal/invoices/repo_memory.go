package invoices

import (
	"context"
	"sort"
	"sync"
	"time"

	"crm-platform/internal/store"
)

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Invoice
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Invoice{}} }

func (r *MemoryRepo) Insert(ctx context.Context, inv Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.rows {
		if other.ID == inv.ID || (other.WorkspaceID == inv.WorkspaceID && other.Number == inv.Number) {
			return store.ErrConflict
		}
	}
	r.rows[inv.ID] = inv
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || inv.WorkspaceID != workspaceID {
		return Invoice{}, store.ErrNotFound
	}
	return inv, nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter, now time.Time) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invoice, 0)
	for _, inv := range r.rows {
		if inv.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.ClientID != "" && inv.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && string(inv.view(now).Status) != f.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	if f.Offset >= len(out) {
		return []Invoice{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Mutate(ctx context.Context, workspaceID, id string, fn Mutation) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || inv.WorkspaceID != workspaceID {
		return Invoice{}, store.ErrNotFound
	}
	changed, err := fn(&inv)
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		r.rows[id] = inv
	}
	return inv, nil
}

func (r *MemoryRepo) Stats(ctx context.Context, workspaceID string, now time.Time) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st Stats
	for _, inv := range r.rows {
		if inv.WorkspaceID != workspaceID {
			continue
		}
		st.Total++
		switch inv.view(now).Status {
		case StatusDraft:
			st.Drafts++
		case StatusPaid:
			st.PaidMinor += inv.AmountMinor
		case StatusOverdue:
			st.Overdue++
			st.OutstandingMinor += inv.AmountMinor
		case StatusSent:
			st.OutstandingMinor += inv.AmountMinor
		}
	}
	return st, nil
}
