package httpapi

import (
	"net/http"

	"crm-platform/internal/extraction"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) RunExtraction(c *gin.Context) {
	var req extraction.RunRequest
	if !bind(c, &req) {
		return
	}
	ws, userID := scope(c)
	out, err := h.Extraction.Run(c.Request.Context(), ws, userID, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *Handlers) ListExtractions(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, err)
		return
	}
	ws, _ := scope(c)
	out, err := h.Extraction.List(c.Request.Context(), ws, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) GetExtraction(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Extraction.Get(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

// ApplyExtraction creates a lead client from the extraction.
func (h *Handlers) ApplyExtraction(c *gin.Context) {
	var req extraction.ApplyRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Extraction.Apply(c.Request.Context(), ws, c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}
