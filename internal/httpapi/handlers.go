package httpapi

import (
	"context"
	"net/http"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/clients"
	"crm-platform/internal/dashboard"
	"crm-platform/internal/email"
	"crm-platform/internal/extraction"
	"crm-platform/internal/guard"
	"crm-platform/internal/identity"
	"crm-platform/internal/invoices"
	"crm-platform/internal/projects"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/store"
	"crm-platform/internal/users"
	"crm-platform/internal/workspace"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/validate"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, render the envelope.
type Handlers struct {
	Sessions   *session.Resolver
	Provider   identity.Provider
	Policy     *rbac.Policy
	Guard      *guard.Guard
	Users      *users.Service
	Workspaces *workspace.Service
	Clients    *clients.Service
	Projects   *projects.Service
	Invoices   *invoices.Service
	Extraction *extraction.Service
	Activity   *audit.Service
	Dashboard  *dashboard.Service
	Email      *email.Dispatcher

	// SecureCookies marks the access cookie Secure; set outside local development.
	SecureCookies bool
	AccessTTL     time.Duration
}

// sessionResponse is the snapshot plus, after sign-in or rotation, the token pair.
type sessionResponse struct {
	session.Snapshot
	Tokens *identity.Session `json:"session,omitempty"`
}

func scope(c *gin.Context) (workspaceID, userID string) {
	ctx := c.Request.Context()
	workspaceID, _ = auth.WorkspaceID(ctx)
	userID, _ = auth.UserID(ctx)
	return workspaceID, userID
}

func (h *Handlers) snapshot(c *gin.Context) session.Snapshot {
	if ctrl := session.FromGin(c); ctrl != nil {
		return ctrl.Snapshot()
	}
	return session.Snapshot{Status: session.StatusUnauthenticated}
}

func callerRole(ctx context.Context) rbac.Role {
	r, _ := auth.Role(ctx)
	return rbac.Role(r)
}

func (h *Handlers) setAccessCookie(c *gin.Context, sess *identity.Session) {
	if sess == nil || sess.AccessToken == "" {
		return
	}
	maxAge := int(h.AccessTTL.Seconds())
	if !sess.AccessExpiresAt.IsZero() {
		maxAge = int(time.Until(sess.AccessExpiresAt).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.AccessCookie, sess.AccessToken, maxAge, "/", "", h.SecureCookies, true)
}

func (h *Handlers) clearAccessCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.AccessCookie, "", -1, "/", "", h.SecureCookies, true)
}

func (h *Handlers) Health(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"status": "ok"})
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login signs in with email and password and returns the session with its token pair.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	ctrl := h.Sessions.New()
	defer ctrl.Close()
	if err := ctrl.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		fail(c, err)
		return
	}
	snap := ctrl.Snapshot()
	h.setAccessCookie(c, snap.Session)
	respond(c, http.StatusOK, sessionResponse{Snapshot: snap, Tokens: snap.Session})
}

// Logout always clears the local session; a provider failure is only logged.
func (h *Handlers) Logout(c *gin.Context) {
	if ctrl := session.FromGin(c); ctrl != nil {
		if err := ctrl.SignOut(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("sign-out incomplete", "err", err)
		}
	}
	h.clearAccessCookie(c)
	respond(c, http.StatusOK, gin.H{"status": session.StatusUnauthenticated})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	if h.Provider == nil {
		fail(c, store.ErrNotConfigured)
		return
	}
	sess, _, err := h.Provider.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	h.setAccessCookie(c, &sess)
	respond(c, http.StatusOK, gin.H{"session": sess})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// passwordChanger is implemented by providers that own the credentials.
type passwordChanger interface {
	ChangePassword(ctx context.Context, accessToken, current, next string) (identity.User, error)
}

// ChangePassword checks the current password, stores the new one and notifies the user by email.
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	pc, ok := h.Provider.(passwordChanger)
	if !ok {
		fail(c, store.ErrNotConfigured)
		return
	}
	ctx := c.Request.Context()
	u, err := pc.ChangePassword(ctx, auth.AccessToken(ctx), req.CurrentPassword, req.NewPassword)
	if err != nil {
		fail(c, err)
		return
	}
	h.Activity.Record(ctx, audit.Event{
		Type:       audit.EventPasswordChanged,
		TargetType: "user",
		TargetID:   u.ID,
	})
	if h.Email != nil {
		if _, err := h.Email.SendPasswordChanged(ctx, u.Email, u.Metadata.FullName); err != nil {
			logger.FromGin(c).Warn("password change email failed", "user_id", u.ID, "err", err)
		}
	}
	respond(c, http.StatusOK, gin.H{"status": "password_changed"})
}

// SignUp registers the first account. Later accounts come from invitations.
func (h *Handlers) SignUp(c *gin.Context) {
	var req users.SignUpRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Users.SignUp(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.welcome(c, p)
	respond(c, http.StatusCreated, p)
}

func (h *Handlers) AcceptInvitation(c *gin.Context) {
	var req users.AcceptRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Users.AcceptInvitation(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.welcome(c, p)
	respond(c, http.StatusCreated, p)
}

func (h *Handlers) welcome(c *gin.Context, p users.UserProfile) {
	if h.Email == nil {
		return
	}
	if _, err := h.Email.SendWelcome(c.Request.Context(), p.Email, p.FullName); err != nil {
		logger.FromGin(c).Warn("welcome email failed", "user_id", p.ID, "err", err)
	}
}

// Session returns the caller's snapshot. Failures are part of the snapshot, not the status.
func (h *Handlers) Session(c *gin.Context) {
	respond(c, http.StatusOK, sessionResponse{Snapshot: h.snapshot(c)})
}

type switchWorkspaceRequest struct {
	WorkspaceID string `json:"workspaceId" validate:"required"`
}

// SwitchWorkspace moves the session to another workspace and reissues the tokens for it.
func (h *Handlers) SwitchWorkspace(c *gin.Context) {
	var req switchWorkspaceRequest
	if !bind(c, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	ctrl := session.FromGin(c)
	ctx := c.Request.Context()
	if err := ctrl.SwitchWorkspace(ctx, req.WorkspaceID); err != nil {
		fail(c, err)
		return
	}
	sess, err := h.Provider.IssueForWorkspace(ctx, auth.AccessToken(ctx), req.WorkspaceID)
	if err != nil {
		fail(c, err)
		return
	}
	h.setAccessCookie(c, &sess)
	respond(c, http.StatusOK, sessionResponse{Snapshot: ctrl.Snapshot(), Tokens: &sess})
}

// --- Workspaces ---

func (h *Handlers) ListWorkspaces(c *gin.Context) {
	ctx := c.Request.Context()
	if rbac.IsSuperAdmin(callerRole(ctx)) {
		all, err := h.Workspaces.ListAll(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, all)
		return
	}
	_, userID := scope(c)
	ms, err := h.Workspaces.ListForUser(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, ms)
}

func (h *Handlers) CreateWorkspace(c *gin.Context) {
	var req workspace.CreateRequest
	if !bind(c, &req) {
		return
	}
	_, userID := scope(c)
	w, err := h.Workspaces.Create(c.Request.Context(), userID, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, w)
}

// --- Pages ---

// LoginPage describes the login screen; bootstrap is true until the first account exists.
func (h *Handlers) LoginPage(c *gin.Context) {
	bootstrap := false
	if h.Users != nil {
		exists, err := h.Users.HasAnyUser(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		bootstrap = !exists
	}
	respond(c, http.StatusOK, gin.H{"page": "login", "bootstrap": bootstrap})
}

// RenderPage is the terminal handler behind guard.Page.
func (h *Handlers) RenderPage(route guard.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := h.snapshot(c)
		respond(c, http.StatusOK, gin.H{
			"page":        route.Path,
			"user":        snap.User,
			"role":        snap.Role,
			"permissions": snap.Permissions,
			"workspaceId": snap.WorkspaceID,
		})
	}
}
