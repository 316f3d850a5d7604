package workspace

import (
	"context"
	"sort"
	"sync"

	"crm-platform/internal/store"
)

// MemoryRepo is an in-memory Repository for tests and local runs without a backend.
type MemoryRepo struct {
	mu          sync.Mutex
	workspaces  map[string]Workspace
	memberships []Membership
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{workspaces: map[string]Workspace{}}
}

func (r *MemoryRepo) Insert(ctx context.Context, w Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.workspaces {
		if existing.Slug == w.Slug {
			return store.ErrConflict
		}
	}
	r.workspaces[w.ID] = w
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return Workspace{}, store.ErrNotFound
	}
	return w, nil
}

func (r *MemoryRepo) ListAll(ctx context.Context) ([]Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepo) UpsertMember(ctx context.Context, m Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[m.WorkspaceID]; !ok {
		return store.ErrNotFound
	}
	for i, existing := range r.memberships {
		if existing.UserID == m.UserID && existing.WorkspaceID == m.WorkspaceID {
			r.memberships[i].Role = m.Role
			return nil
		}
	}
	r.memberships = append(r.memberships, m)
	return nil
}

func (r *MemoryRepo) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.memberships {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			r.memberships = append(r.memberships[:i], r.memberships[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *MemoryRepo) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	return r.filter(func(m Membership) bool { return m.UserID == userID }), nil
}

func (r *MemoryRepo) ListMembers(ctx context.Context, workspaceID string) ([]Membership, error) {
	return r.filter(func(m Membership) bool { return m.WorkspaceID == workspaceID }), nil
}

func (r *MemoryRepo) filter(keep func(Membership) bool) []Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Membership, 0)
	for _, m := range r.memberships {
		if keep(m) {
			m.WorkspaceName = r.workspaces[m.WorkspaceID].Name
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
