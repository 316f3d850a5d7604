// Package guard decides, per page request, whether to render the page, redirect,
// or show an account-status interstitial.
package guard

import (
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
)

// Pages is the guarded page table.
func Pages() []Route {
	return []Route{
		{Path: DashboardPath},
		{Path: "/users", RequireAdmin: true},
		{Path: "/projects", RequiredPermission: rbac.PermBoardsView},
		{Path: "/clients", RequiredPermission: rbac.PermClientsView},
		{Path: "/admin/email-setup", RequireAdmin: true, RequiredPermission: rbac.PermAdminEmailSetup},
		{Path: "/admin/system", RequireSuperAdmin: true},
	}
}

// Evaluate applies the guard policy in order:
//  1. diagnostic when the session has an error and no user
//  2. loading while the session is loading
//  3. login redirect when there is no user
//  4. locked interstitial while locked_until is in the future
//  5. inactive interstitial for deactivated accounts
//  6. dashboard redirect when the route's role requirement is not met
//  7. dashboard redirect when the route's permission is not held
//  8. render
//
// Evaluate has no side effects.
func Evaluate(snap session.Snapshot, route Route, policy *rbac.Policy, now time.Time) Decision {
	if snap.Error != "" && snap.User == nil {
		return Decision{Kind: KindDiagnostic, Message: snap.Error}
	}
	if snap.Loading() {
		return Decision{Kind: KindLoading}
	}
	if snap.User == nil {
		return Decision{Kind: KindRedirect, Location: LoginPath}
	}
	u := snap.User
	if u.IsLocked(now) {
		until := *u.LockedUntil
		return Decision{Kind: KindLocked, Message: "account locked", LockedUntil: &until}
	}
	if !u.IsActive {
		return Decision{Kind: KindInactive, Message: "account deactivated"}
	}

	home := Decision{Kind: KindRedirect, Location: DashboardPath}
	role := snap.Role
	if role == "" {
		role = u.Role
	}
	if route.RequireSuperAdmin && !rbac.IsSuperAdmin(role) {
		return home
	}
	if route.RequireAdmin && !rbac.IsAdmin(role) {
		return home
	}
	if route.RequiredPermission != "" {
		if policy == nil || !policy.HasPermission(role, u.Permissions, route.RequiredPermission) {
			return home
		}
	}
	return Decision{Kind: KindRender}
}

