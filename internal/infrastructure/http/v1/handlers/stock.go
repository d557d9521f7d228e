package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/http/v1/dto"
)

// StockHandler handles stock item reads, receipts and damage.
type StockHandler struct {
	*BaseHandler
	service *allocation.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *allocation.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

func stockKey(c *gin.Context) stock.Key {
	return stock.Key{DepotID: c.Param("depot"), ItemID: c.Param("item")}
}

func (h *StockHandler) itemResponse(item stock.StockItem) dto.StockItemResponse {
	return dto.FromStockItem(item, h.service.SortedBatches(item))
}

// GetItem handles GET /depots/:depot/items/:item
func (h *StockHandler) GetItem(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), stockKey(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.itemResponse(item))
}

// ListDepot handles GET /depots/:depot/items
func (h *StockHandler) ListDepot(c *gin.Context) {
	items, err := h.service.ListDepot(c.Request.Context(), c.Param("depot"))
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.StockItemResponse, len(items))
	for i, item := range items {
		resp[i] = h.itemResponse(item)
	}
	h.OK(c, dto.NewListResponse(resp))
}

// Preview handles GET /depots/:depot/items/:item/preview?qty=
func (h *StockHandler) Preview(c *gin.Context) {
	qty, ok := h.ParseIntQuery(c, "qty", 0)
	if !ok {
		return
	}
	if qty <= 0 {
		h.Error(c, apperror.NewValidation("qty must be positive").WithDetail("field", "qty"))
		return
	}

	res, err := h.service.Preview(c.Request.Context(), stockKey(c), types.Quantity(qty))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPreview(res))
}

// Receive handles POST /depots/:depot/items/:item/receipts
func (h *StockHandler) Receive(c *gin.Context) {
	var req dto.ReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput(stockKey(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	batch, item, err := h.service.Receive(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.ReceiptResponse{Batch: dto.FromBatch(batch), Item: h.itemResponse(item)})
}

// MarkDamaged handles POST /depots/:depot/items/:item/damaged
func (h *StockHandler) MarkDamaged(c *gin.Context) {
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.service.MarkDamaged(c.Request.Context(), stockKey(c), types.Quantity(req.Quantity))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.itemResponse(item))
}

// WriteOffDamaged handles POST /depots/:depot/items/:item/damaged/write-off
func (h *StockHandler) WriteOffDamaged(c *gin.Context) {
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.service.WriteOffDamaged(c.Request.Context(), stockKey(c), types.Quantity(req.Quantity))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.itemResponse(item))
}

// Expiring handles GET /depots/:depot/expiring?days=&asOf=
func (h *StockHandler) Expiring(c *gin.Context) {
	days, ok := h.ParseIntQuery(c, "days", 90)
	if !ok {
		return
	}

	asOf := types.DateOf(time.Now())
	if s := c.Query("asOf"); s != "" {
		parsed, err := types.ParseDate(s)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid asOf date").WithDetail("field", "asOf"))
			return
		}
		asOf = parsed
	}

	batches, err := h.service.ExpiringBatches(c.Request.Context(), c.Param("depot"), days, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(batches))
}
