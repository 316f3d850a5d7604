package httpapi

import (
	"net/http"

	"crm-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// ListActivity lists the newest events of the workspace; a super admin may pass all=true.
func (h *Handlers) ListActivity(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, err)
		return
	}
	ws, _ := scope(c)
	if c.Query("all") == "true" && rbac.IsSuperAdmin(callerRole(c.Request.Context())) {
		ws = ""
	}
	out, err := h.Activity.List(c.Request.Context(), ws, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) DashboardSummary(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Dashboard.Summary(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

// EmailStatus reports whether mail is really delivered or only logged.
func (h *Handlers) EmailStatus(c *gin.Context) {
	respond(c, http.StatusOK, h.Email.Status())
}

type testEmailRequest struct {
	To string `json:"to"`
}

func (h *Handlers) SendTestEmail(c *gin.Context) {
	var req testEmailRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.Email.SendTest(c.Request.Context(), req.To)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}
