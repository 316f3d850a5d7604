package httpapi

import (
	"net/http"

	"crm-platform/internal/clients"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListClients(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	ws, _ := scope(c)
	out, err := h.Clients.List(c.Request.Context(), clients.ListFilter{
		WorkspaceID: ws,
		Search:      c.Query("search"),
		Status:      c.Query("status"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) ClientStats(c *gin.Context) {
	ws, _ := scope(c)
	st, err := h.Clients.Stats(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

func (h *Handlers) GetClient(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Clients.Get(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) CreateClient(c *gin.Context) {
	var req clients.CreateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Clients.Create(c.Request.Context(), ws, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *Handlers) UpdateClient(c *gin.Context) {
	var req clients.UpdateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Clients.Update(c.Request.Context(), ws, c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) DeleteClient(c *gin.Context) {
	ws, _ := scope(c)
	if err := h.Clients.Delete(c.Request.Context(), ws, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id")})
}
