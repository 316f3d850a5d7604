package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
)

// MemoryRepo is an in-memory Repository used by tests.
type MemoryRepo struct {
	mu          sync.Mutex
	profiles    map[string]UserProfile
	perms       map[string]map[string]struct{}
	invitations map[string]Invitation
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		profiles:    map[string]UserProfile{},
		perms:       map[string]map[string]struct{}{},
		invitations: map[string]Invitation{},
	}
}

func (r *MemoryRepo) GetProfile(ctx context.Context, id string) (UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return UserProfile{}, store.ErrNotFound
	}
	return r.withPerms(p), nil
}

func (r *MemoryRepo) ListProfiles(ctx context.Context, f ListFilter) ([]UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.match(f)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []UserProfile{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Stats(ctx context.Context, f ListFilter, now time.Time) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st Stats
	for _, p := range r.match(f) {
		st.Total++
		if p.IsActive {
			st.Active++
		}
		if p.Role.AtLeast(rbac.RoleAdmin) {
			st.Admins++
		}
		if p.IsLocked(now) {
			st.Locked++
		}
	}
	return st, nil
}

func (r *MemoryRepo) match(f ListFilter) []UserProfile {
	var allowed map[string]struct{}
	if f.ids != nil {
		allowed = make(map[string]struct{}, len(f.ids))
		for _, id := range f.ids {
			allowed[id] = struct{}{}
		}
	}
	term := strings.ToLower(f.Search)
	out := make([]UserProfile, 0)
	for _, p := range r.profiles {
		if allowed != nil {
			if _, ok := allowed[p.ID]; !ok {
				continue
			}
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Email), term) && !strings.Contains(strings.ToLower(p.FullName), term) {
			continue
		}
		if f.Role != "" && string(p.Role) != f.Role {
			continue
		}
		if f.Active != nil && p.IsActive != *f.Active {
			continue
		}
		out = append(out, r.withPerms(p))
	}
	return out
}

func (r *MemoryRepo) CountProfiles(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles), nil
}

func (r *MemoryRepo) InsertProfile(ctx context.Context, p UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.profiles {
		if existing.ID == p.ID || strings.EqualFold(existing.Email, p.Email) {
			return store.ErrConflict
		}
	}
	p.Permissions = nil
	p.Memberships = nil
	r.profiles[p.ID] = p
	return nil
}

func (r *MemoryRepo) UpdateRole(ctx context.Context, id string, role rbac.Role, now time.Time) error {
	return r.update(id, func(p *UserProfile) { p.Role = role; p.UpdatedAt = now })
}

func (r *MemoryRepo) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	return r.update(id, func(p *UserProfile) { p.IsActive = active; p.UpdatedAt = now })
}

func (r *MemoryRepo) SetLockedUntil(ctx context.Context, id string, until *time.Time, now time.Time) error {
	return r.update(id, func(p *UserProfile) { p.LockedUntil = until; p.UpdatedAt = now })
}

func (r *MemoryRepo) TouchLogin(ctx context.Context, id string, now time.Time) error {
	return r.update(id, func(p *UserProfile) {
		t := now
		p.LastLoginAt = &t
		p.LastActivityAt = &t
	})
}

func (r *MemoryRepo) update(id string, fn func(p *UserProfile)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&p)
	r.profiles[id] = p
	return nil
}

func (r *MemoryRepo) GrantPermission(ctx context.Context, id, permission, grantedBy string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return store.ErrNotFound
	}
	if r.perms[id] == nil {
		r.perms[id] = map[string]struct{}{}
	}
	r.perms[id][permission] = struct{}{}
	return nil
}

func (r *MemoryRepo) RevokePermission(ctx context.Context, id, permission string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.perms[id][permission]; !ok {
		return store.ErrNotFound
	}
	delete(r.perms[id], permission)
	return nil
}

func (r *MemoryRepo) withPerms(p UserProfile) UserProfile {
	p.Permissions = make([]string, 0, len(r.perms[p.ID]))
	for name := range r.perms[p.ID] {
		p.Permissions = append(p.Permissions, name)
	}
	sort.Strings(p.Permissions)
	return p
}

func (r *MemoryRepo) InsertInvitation(ctx context.Context, inv Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.Token]; ok {
		return store.ErrConflict
	}
	r.invitations[inv.Token] = inv
	return nil
}

func (r *MemoryRepo) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[token]
	if !ok {
		return Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

func (r *MemoryRepo) MarkInvitationAccepted(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, inv := range r.invitations {
		if inv.ID != id {
			continue
		}
		if inv.AcceptedAt != nil {
			return store.ErrConflict
		}
		t := now
		inv.AcceptedAt = &t
		r.invitations[token] = inv
		return nil
	}
	return store.ErrNotFound
}

func (r *MemoryRepo) ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invitation, 0)
	for _, inv := range r.invitations {
		if workspaceID != "" && inv.WorkspaceID != workspaceID {
			continue
		}
		inv.Token = ""
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
