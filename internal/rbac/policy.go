package rbac

import (
	"errors"
	"fmt"
)

var ErrForbidden = errors.New("forbidden")

// Mode selects how member permissions are decided.
type Mode string

const (
	// ModeGranted checks members against the permissions granted to them individually.
	ModeGranted Mode = "granted"
	// ModeAllowList checks members against one configured list and ignores individual grants.
	ModeAllowList Mode = "allowlist"
)

// Policy is the single permission evaluator. Route guards, API middleware and the
// session controller all call HasPermission; nothing re-implements the rules.
type Policy struct {
	mode    Mode
	allow   map[string]struct{}
	catalog *Catalog
}

func NewPolicy(mode Mode, allowList []string, catalog *Catalog) (*Policy, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	switch mode {
	case ModeGranted, ModeAllowList:
	default:
		return nil, fmt.Errorf("rbac: unknown policy mode %q", mode)
	}
	p := &Policy{mode: mode, allow: make(map[string]struct{}, len(allowList)), catalog: catalog}
	for _, name := range allowList {
		if !catalog.Known(name) {
			return nil, fmt.Errorf("rbac: allow-list permission %q not in catalog", name)
		}
		if catalog.SuperAdminOnly(name) {
			return nil, fmt.Errorf("rbac: allow-list permission %q is super-admin only", name)
		}
		p.allow[name] = struct{}{}
	}
	return p, nil
}

func (p *Policy) Mode() Mode { return p.mode }

func (p *Policy) Catalog() *Catalog { return p.catalog }

// HasPermission decides whether a subject with role and granted permissions holds name.
//   - super_admin holds everything.
//   - admin holds everything except super-admin-only permissions.
//   - member holds name if the mode's list contains it; super-admin-only names never.
func (p *Policy) HasPermission(role Role, granted []string, name string) bool {
	if name == "" {
		return false
	}
	switch role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return !p.catalog.SuperAdminOnly(name)
	case RoleMember:
		if p.catalog.SuperAdminOnly(name) {
			return false
		}
		if p.mode == ModeAllowList {
			_, ok := p.allow[name]
			return ok
		}
		for _, g := range granted {
			if g == name {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Effective lists every catalog permission the subject holds, sorted by name.
func (p *Policy) Effective(role Role, granted []string) []string {
	var out []string
	for _, perm := range p.catalog.All() {
		if p.HasPermission(role, granted, perm.Name) {
			out = append(out, perm.Name)
		}
	}
	return out
}

// CanGrant reports whether name may be stored as an individual grant for a member.
func (p *Policy) CanGrant(name string) error {
	if !p.catalog.Known(name) {
		return fmt.Errorf("rbac: unknown permission %q", name)
	}
	if p.catalog.SuperAdminOnly(name) {
		return fmt.Errorf("rbac: permission %q is super-admin only", name)
	}
	return nil
}
