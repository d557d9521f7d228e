package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/infrastructure/http/v1/dto"
)

type allocateFunc func(ctx context.Context, depotID, refID string, lines []allocation.OrderLine) (allocation.Outcome, error)

// OrderHandler handles holds, allocations and their reversal.
type OrderHandler struct {
	*BaseHandler
	service *allocation.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *allocation.Service) *OrderHandler {
	return &OrderHandler{
		BaseHandler: base,
		service:     service,
	}
}

func (h *OrderHandler) respond(c *gin.Context, out allocation.Outcome, err error) {
	if err != nil {
		h.OutcomeError(c, out, err)
		return
	}
	h.Created(c, out)
}

func (h *OrderHandler) order(c *gin.Context, fn allocateFunc) {
	var req dto.OrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	out, err := fn(c.Request.Context(), c.Param("depot"), req.RefID, req.OrderLines())
	h.respond(c, out, err)
}

// Hold handles POST /depots/:depot/holds
func (h *OrderHandler) Hold(c *gin.Context) {
	h.order(c, h.service.Hold)
}

// StockOut handles POST /depots/:depot/stock-outs
func (h *OrderHandler) StockOut(c *gin.Context) {
	h.order(c, h.service.StockOut)
}

// Dispatch handles POST /depots/:depot/dispatches
func (h *OrderHandler) Dispatch(c *gin.Context) {
	h.order(c, h.service.Dispatch)
}

// Fulfil handles POST /depots/:depot/invoices/:ref/fulfil
func (h *OrderHandler) Fulfil(c *gin.Context) {
	var req dto.LinesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	out, err := h.service.FulfilInvoice(c.Request.Context(), c.Param("depot"), c.Param("ref"), req.OrderLines())
	h.respond(c, out, err)
}

// Cancel handles POST /depots/:depot/orders/:ref/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}

	res, err := h.service.Cancel(c.Request.Context(), c.Param("depot"), c.Param("ref"), req.OrderLines())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Edit handles PUT /depots/:depot/orders/:ref
func (h *OrderHandler) Edit(c *gin.Context) {
	var req dto.EditRequest
	if !h.BindJSON(c, &req) {
		return
	}

	out, err := h.service.Edit(c.Request.Context(), c.Param("depot"), c.Param("ref"), allocation.Kind(req.Kind), req.OrderLines())
	if err != nil {
		h.OutcomeError(c, out, err)
		return
	}
	h.OK(c, out)
}

// RecordsByRef handles GET /depots/:depot/orders/:ref/allocations
func (h *OrderHandler) RecordsByRef(c *gin.Context) {
	recs, err := h.service.RecordsByRef(c.Request.Context(), c.Param("depot"), c.Param("ref"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(recs))
}

// GetAllocation handles GET /allocations/:id
func (h *OrderHandler) GetAllocation(c *gin.Context) {
	recID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid allocation id").WithDetail("field", "id"))
		return
	}

	rec, err := h.service.Record(c.Request.Context(), recID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Transfer handles POST /transfers
func (h *OrderHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Transfer(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
