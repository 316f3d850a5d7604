package guard

import (
	"testing"
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/users"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustPolicy(t *testing.T) *rbac.Policy {
	t.Helper()
	p, err := rbac.NewPolicy(rbac.ModeGranted, nil, nil)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func signedIn(role rbac.Role, perms ...string) session.Snapshot {
	return session.Snapshot{
		Status: session.StatusAuthenticated,
		Role:   role,
		User:   &users.UserProfile{ID: "u1", Role: role, IsActive: true, Permissions: perms},
	}
}

func route(t *testing.T, path string) Route {
	t.Helper()
	for _, r := range Pages() {
		if r.Path == path {
			return r
		}
	}
	t.Fatalf("no page %s", path)
	return Route{}
}

func TestEvaluate_NoUserRedirectsToLogin(t *testing.T) {
	p := mustPolicy(t)
	snap := session.Snapshot{Status: session.StatusUnauthenticated}
	for _, r := range Pages() {
		d := Evaluate(snap, r, p, now)
		if d.Kind != KindRedirect || d.Location != LoginPath {
			t.Fatalf("%s: expected login redirect, got %+v", r.Path, d)
		}
	}
}

func TestEvaluate_LockedRegardlessOfRole(t *testing.T) {
	p := mustPolicy(t)
	until := now.Add(time.Hour)
	for _, role := range []rbac.Role{rbac.RoleMember, rbac.RoleAdmin, rbac.RoleSuperAdmin} {
		snap := signedIn(role)
		snap.User.LockedUntil = &until
		for _, r := range Pages() {
			d := Evaluate(snap, r, p, now)
			if d.Kind != KindLocked || d.LockedUntil == nil || !d.LockedUntil.Equal(until) {
				t.Fatalf("%s %s: expected locked, got %+v", role, r.Path, d)
			}
		}
	}
}

func TestEvaluate_ExpiredLockRenders(t *testing.T) {
	past := now.Add(-time.Minute)
	snap := signedIn(rbac.RoleAdmin)
	snap.User.LockedUntil = &past
	if d := Evaluate(snap, route(t, "/users"), mustPolicy(t), now); d.Kind != KindRender {
		t.Fatalf("expected render after lock expiry, got %+v", d)
	}
}

func TestEvaluate_LockedBeforeInactive(t *testing.T) {
	until := now.Add(time.Hour)
	snap := signedIn(rbac.RoleMember)
	snap.User.LockedUntil = &until
	snap.User.IsActive = false
	if d := Evaluate(snap, route(t, DashboardPath), mustPolicy(t), now); d.Kind != KindLocked {
		t.Fatalf("expected locked first, got %+v", d)
	}
}

func TestEvaluate_Inactive(t *testing.T) {
	snap := signedIn(rbac.RoleAdmin)
	snap.User.IsActive = false
	if d := Evaluate(snap, route(t, DashboardPath), mustPolicy(t), now); d.Kind != KindInactive {
		t.Fatalf("expected inactive, got %+v", d)
	}
}

func TestEvaluate_RequireAdminMemberRedirectsToDashboard(t *testing.T) {
	d := Evaluate(signedIn(rbac.RoleMember), Route{Path: "/x", RequireAdmin: true}, mustPolicy(t), now)
	if d.Kind != KindRedirect || d.Location != DashboardPath {
		t.Fatalf("expected dashboard redirect, got %+v", d)
	}
}

func TestEvaluate_SuperAdminRoute(t *testing.T) {
	p := mustPolicy(t)
	r := route(t, "/admin/system")
	if d := Evaluate(signedIn(rbac.RoleAdmin), r, p, now); d.Kind != KindRedirect {
		t.Fatalf("admin must be redirected from super admin page, got %+v", d)
	}
	if d := Evaluate(signedIn(rbac.RoleSuperAdmin), r, p, now); d.Kind != KindRender {
		t.Fatalf("super admin should render, got %+v", d)
	}
}

func TestEvaluate_MemberMissingPermissionRedirects(t *testing.T) {
	snap := signedIn(rbac.RoleMember, rbac.PermDashboardView)
	d := Evaluate(snap, Route{Path: "/clients", RequiredPermission: rbac.PermClientsView}, mustPolicy(t), now)
	if d.Kind != KindRedirect || d.Location != DashboardPath {
		t.Fatalf("expected dashboard redirect, got %+v", d)
	}
	if d := Evaluate(snap, route(t, DashboardPath), mustPolicy(t), now); d.Kind != KindRender {
		t.Fatalf("dashboard should render, got %+v", d)
	}
}

func TestEvaluate_EmailSetupNeedsAdminAndPermission(t *testing.T) {
	p := mustPolicy(t)
	r := route(t, "/admin/email-setup")
	if d := Evaluate(signedIn(rbac.RoleMember, rbac.PermAdminEmailSetup), r, p, now); d.Kind != KindRedirect {
		t.Fatalf("member with the grant still lacks the role, got %+v", d)
	}
	if d := Evaluate(signedIn(rbac.RoleAdmin), r, p, now); d.Kind != KindRender {
		t.Fatalf("admin should render, got %+v", d)
	}
}

func TestEvaluate_DiagnosticAndLoadingComeFirst(t *testing.T) {
	p := mustPolicy(t)
	diag := session.Snapshot{Status: session.StatusUnauthenticated, Error: "Supabase not configured"}
	if d := Evaluate(diag, route(t, "/clients"), p, now); d.Kind != KindDiagnostic || d.Message != "Supabase not configured" {
		t.Fatalf("expected diagnostic, got %+v", d)
	}
	if d := Evaluate(session.Snapshot{Status: session.StatusLoading}, route(t, "/clients"), p, now); d.Kind != KindLoading {
		t.Fatalf("expected loading, got %+v", d)
	}
}
