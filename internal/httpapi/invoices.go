package httpapi

import (
	"context"
	"net/http"

	"crm-platform/internal/invoices"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListInvoices(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	ws, _ := scope(c)
	out, err := h.Invoices.List(c.Request.Context(), invoices.ListFilter{
		WorkspaceID: ws,
		ClientID:    c.Query("clientId"),
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

func (h *Handlers) InvoiceStats(c *gin.Context) {
	ws, _ := scope(c)
	st, err := h.Invoices.Stats(c.Request.Context(), ws)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

func (h *Handlers) GetInvoice(c *gin.Context) {
	ws, _ := scope(c)
	out, err := h.Invoices.Get(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req invoices.CreateRequest
	if !bind(c, &req) {
		return
	}
	ws, _ := scope(c)
	out, err := h.Invoices.Create(c.Request.Context(), ws, req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *Handlers) SendInvoice(c *gin.Context) {
	h.transition(c, h.Invoices.Send)
}

func (h *Handlers) VoidInvoice(c *gin.Context) {
	h.transition(c, h.Invoices.Void)
}

// MarkInvoicePaid is idempotent: paying a paid invoice returns it unchanged.
func (h *Handlers) MarkInvoicePaid(c *gin.Context) {
	var req invoices.MarkPaidRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, ws, id string) (invoices.Invoice, error) {
		return h.Invoices.MarkPaid(ctx, ws, id, req)
	})
}

func (h *Handlers) transition(c *gin.Context, fn func(ctx context.Context, ws, id string) (invoices.Invoice, error)) {
	ws, _ := scope(c)
	out, err := fn(c.Request.Context(), ws, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
