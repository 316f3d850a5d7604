package rbac

import "testing"

func mustPolicy(t *testing.T, mode Mode, allow ...string) *Policy {
	t.Helper()
	p, err := NewPolicy(mode, allow, DefaultCatalog())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func TestHasPermission_AdminSuperOnlyForSuperAdmin(t *testing.T) {
	for _, mode := range []Mode{ModeGranted, ModeAllowList} {
		p := mustPolicy(t, mode, PermDashboardView)
		everything := []string{PermAdminSuper, PermDashboardView}
		for _, role := range []Role{RoleMember, RoleAdmin, RoleSuperAdmin} {
			got := p.HasPermission(role, everything, PermAdminSuper)
			if got != (role == RoleSuperAdmin) {
				t.Fatalf("mode %s role %s: admin.super = %v", mode, role, got)
			}
		}
	}
}

func TestHasPermission_AdminHoldsAllButSuperOnly(t *testing.T) {
	p := mustPolicy(t, ModeGranted)
	for _, perm := range DefaultCatalog().All() {
		got := p.HasPermission(RoleAdmin, nil, perm.Name)
		if got == perm.SuperAdminOnly {
			t.Fatalf("admin %s = %v (super only %v)", perm.Name, got, perm.SuperAdminOnly)
		}
	}
}

func TestHasPermission_MemberGrantedMode(t *testing.T) {
	p := mustPolicy(t, ModeGranted)
	granted := []string{PermDashboardView}
	for _, perm := range DefaultCatalog().All() {
		got := p.HasPermission(RoleMember, granted, perm.Name)
		if got != (perm.Name == PermDashboardView) {
			t.Fatalf("member %s = %v", perm.Name, got)
		}
	}
}

func TestHasPermission_MemberAllowListIgnoresGrants(t *testing.T) {
	p := mustPolicy(t, ModeAllowList, PermDashboardView, PermClientsView)
	if !p.HasPermission(RoleMember, nil, PermClientsView) {
		t.Fatalf("expected allow-listed permission")
	}
	if p.HasPermission(RoleMember, []string{PermBoardsEdit}, PermBoardsEdit) {
		t.Fatalf("allowlist mode must ignore individual grants")
	}
}

func TestHasPermission_ExampleScenario(t *testing.T) {
	p := mustPolicy(t, ModeGranted)
	if p.HasPermission(RoleMember, []string{PermDashboardView}, PermClientsView) {
		t.Fatalf("member with dashboard.view must not hold clients.view")
	}
}

func TestNewPolicy_RejectsSuperOnlyAllowList(t *testing.T) {
	if _, err := NewPolicy(ModeAllowList, []string{PermAdminSuper}, nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewPolicy(ModeAllowList, []string{"nope.nope"}, nil); err == nil {
		t.Fatalf("expected error for unknown permission")
	}
	if _, err := NewPolicy("open", nil, nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestEffective(t *testing.T) {
	p := mustPolicy(t, ModeGranted)
	got := p.Effective(RoleMember, []string{PermClientsView, PermDashboardView})
	if len(got) != 2 || got[0] != PermClientsView || got[1] != PermDashboardView {
		t.Fatalf("unexpected effective set %v", got)
	}
	if len(p.Effective(RoleSuperAdmin, nil)) != len(DefaultCatalog().All()) {
		t.Fatalf("super admin should hold the full catalog")
	}
}

func TestCanGrant(t *testing.T) {
	p := mustPolicy(t, ModeGranted)
	if err := p.CanGrant(PermClientsEdit); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := p.CanGrant(PermAdminSuper); err == nil {
		t.Fatalf("expected super-only grant to be refused")
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	r, err := ParseRole("admin")
	if err != nil || r != RoleAdmin {
		t.Fatalf("unexpected %v %v", r, err)
	}
	if !RoleSuperAdmin.AtLeast(RoleAdmin) || RoleMember.AtLeast(RoleAdmin) {
		t.Fatalf("rank ordering broken")
	}
	if Max(RoleMember, RoleAdmin) != RoleAdmin {
		t.Fatalf("Max broken")
	}
}

func TestCatalogCategories(t *testing.T) {
	byCat := DefaultCatalog().ByCategory()
	for _, c := range []Category{CategoryDashboard, CategoryBoards, CategoryApps, CategoryAdmin, CategoryClients} {
		if len(byCat[c]) == 0 {
			t.Fatalf("category %s empty", c)
		}
	}
	if _, err := ParseCatalog([]byte("permissions:\n  - name: x.y\n    category: nope\n")); err == nil {
		t.Fatalf("expected category error")
	}
}
