package clients

import (
	"context"
	"sort"
	"strings"
	"sync"

	"crm-platform/internal/store"
)

// MemoryRepo keeps clients in memory. It has no project or invoice tables, so the
// aggregates are whatever the stored value carries.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Client
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Client{}} }

func (r *MemoryRepo) Insert(ctx context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.ID]; ok {
		return store.ErrConflict
	}
	r.rows[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.WorkspaceID != workspaceID {
		return Client{}, store.ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term := strings.ToLower(f.Search)
	out := make([]Client, 0)
	for _, c := range r.rows {
		if c.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if term != "" && !containsAny(term, c.CompanyName, c.ContactName, c.Email) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []Client{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsAny(term string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func (r *MemoryRepo) Update(ctx context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.rows[c.ID]
	if !ok || old.WorkspaceID != c.WorkspaceID {
		return store.ErrNotFound
	}
	r.rows[c.ID] = c
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, workspaceID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.WorkspaceID != workspaceID {
		return store.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepo) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st Stats
	for _, c := range r.rows {
		if c.WorkspaceID != workspaceID {
			continue
		}
		st.Total++
		switch c.Status {
		case StatusActive:
			st.Active++
		case StatusLead:
			st.Leads++
		}
		st.RevenueMinor += c.TotalRevenueMinor
	}
	return st, nil
}
