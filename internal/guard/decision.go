package guard

import "time"

// Decision is the outcome of evaluating one page request. Only the fields needed
// to render it are set: Location for redirects, Message for interstitials.
type Decision struct {
	Kind     Kind   `json:"kind"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`

	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

type Kind string

const (
	KindDiagnostic Kind = "diagnostic"
	KindLoading    Kind = "loading"
	KindRedirect   Kind = "redirect"
	KindLocked     Kind = "locked"
	KindInactive   Kind = "inactive"
	KindRender     Kind = "render"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Route describes what a page requires beyond a signed-in, unlocked, active user.
type Route struct {
	Path               string `json:"path"`
	RequireAdmin       bool   `json:"requireAdmin,omitempty"`
	RequireSuperAdmin  bool   `json:"requireSuperAdmin,omitempty"`
	RequiredPermission string `json:"requiredPermission,omitempty"`
}
