package httpapi

import (
	"fmt"
	"net/http"

	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/internal/users"
	"crm-platform/pkg/validate"

	"github.com/gin-gonic/gin"
)

// ListUsers lists the members of the caller's workspace. A super admin may pass any
// workspaceId, or all=true to list every profile.
func (h *Handlers) ListUsers(c *gin.Context) {
	var f users.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		fail(c, fmt.Errorf("%w: %v", validate.ErrInvalid, err))
		return
	}
	ws, _ := scope(c)
	switch {
	case !rbac.IsSuperAdmin(callerRole(c.Request.Context())):
		f.WorkspaceID = ws
	case f.WorkspaceID == "" && c.Query("all") != "true":
		f.WorkspaceID = ws
	}
	out, err := h.Users.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) UserStats(c *gin.Context) {
	ws, _ := scope(c)
	st, err := h.Users.Stats(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

// inScope hides users outside the caller's workspace from everyone but super admins.
func (h *Handlers) inScope(c *gin.Context, userID string) bool {
	ctx := c.Request.Context()
	if rbac.IsSuperAdmin(callerRole(ctx)) {
		return true
	}
	ws, _ := scope(c)
	_, ok, err := h.Workspaces.IsMember(ctx, ws, userID)
	if err != nil {
		fail(c, err)
		return false
	}
	if !ok {
		fail(c, store.ErrNotFound)
		return false
	}
	return true
}

func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if !h.inScope(c, id) {
		return
	}
	p, err := h.Users.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handlers) UpdateUserRole(c *gin.Context) {
	var req roleRequest
	if !bind(c, &req) || !h.inScope(c, c.Param("id")) {
		return
	}
	h.renderUser(c)(h.Users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role))
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *Handlers) SetUserActive(c *gin.Context) {
	var req activeRequest
	if !bind(c, &req) || !h.inScope(c, c.Param("id")) {
		return
	}
	if req.Active == nil {
		fail(c, store.ErrInvalidArgument)
		return
	}
	h.renderUser(c)(h.Users.SetActive(c.Request.Context(), c.Param("id"), *req.Active))
}

func (h *Handlers) UnlockUser(c *gin.Context) {
	if !h.inScope(c, c.Param("id")) {
		return
	}
	h.renderUser(c)(h.Users.Unlock(c.Request.Context(), c.Param("id")))
}

type permissionRequest struct {
	Permission string `json:"permission"`
}

func (h *Handlers) GrantPermission(c *gin.Context) {
	var req permissionRequest
	if !bind(c, &req) || !h.inScope(c, c.Param("id")) {
		return
	}
	h.renderUser(c)(h.Users.GrantPermission(c.Request.Context(), c.Param("id"), req.Permission))
}

func (h *Handlers) RevokePermission(c *gin.Context) {
	if !h.inScope(c, c.Param("id")) {
		return
	}
	h.renderUser(c)(h.Users.RevokePermission(c.Request.Context(), c.Param("id"), c.Param("permission")))
}

func (h *Handlers) renderUser(c *gin.Context) func(users.UserProfile, error) {
	return func(p users.UserProfile, err error) {
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, p)
	}
}

// --- Invitations ---

func (h *Handlers) ListInvitations(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Users.ListInvitations(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

// CreateInvitation stores the invitation and mails the accept link. A failed email does
// not undo the invitation; the response carries the delivery error instead.
func (h *Handlers) CreateInvitation(c *gin.Context) {
	var req users.InviteRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	if req.WorkspaceID == "" || !rbac.IsSuperAdmin(callerRole(c.Request.Context())) {
		req.WorkspaceID = ws
	}
	ctx := c.Request.Context()
	inv, err := h.Users.CreateInvitation(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{"invitation": inv}
	if h.Email != nil {
		wsName := ""
		if w, err := h.Workspaces.Get(ctx, inv.WorkspaceID); err == nil {
			wsName = w.Name
		}
		inviter := ""
		if snap := h.snapshot(c); snap.User != nil {
			inviter = snap.User.FullName
		}
		res, err := h.Email.SendInvitation(ctx, inv.Email, inv.Token, string(inv.Role), wsName, inviter, inv.ExpiresAt)
		if err != nil {
			body["emailError"] = err.Error()
		} else {
			body["email"] = res
		}
	}
	respond(c, http.StatusCreated, body)
}
