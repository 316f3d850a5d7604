package httpapi

import (
	"net/http"

	"crm-platform/internal/projects"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListProjects(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.List(c.Request.Context(), projects.ListFilter{
		WorkspaceID: ws,
		ClientID:    c.Query("clientId"),
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

func (h *Handlers) ProjectStats(c *gin.Context) {
	ws, _ := scope(c)
	st, err := h.Projects.Stats(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

func (h *Handlers) GetProject(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Projects.Get(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) CreateProject(c *gin.Context) {
	var req projects.CreateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.Create(c.Request.Context(), ws, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *Handlers) UpdateProject(c *gin.Context) {
	var req projects.UpdateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.Update(c.Request.Context(), ws, c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) DeleteProject(c *gin.Context) {
	ws, _ := scope(c)
	if err := h.Projects.Delete(c.Request.Context(), ws, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

// --- Tasks ---

// Board returns the project's tasks grouped into status columns.
func (h *Handlers) Board(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Projects.Board(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) CreateTask(c *gin.Context) {
	var req projects.TaskCreateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.CreateTask(c.Request.Context(), ws, c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *Handlers) UpdateTask(c *gin.Context) {
	var req projects.TaskUpdateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.UpdateTask(c.Request.Context(), ws, c.Param("taskId"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) MoveTask(c *gin.Context) {
	var req projects.MoveRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Projects.MoveTask(c.Request.Context(), ws, c.Param("taskId"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) DeleteTask(c *gin.Context) {
	ws, _ := scope(c)
	if err := h.Projects.DeleteTask(c.Request.Context(), ws, c.Param("taskId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("taskId")})
}
