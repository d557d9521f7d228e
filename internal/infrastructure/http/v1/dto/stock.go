package dto

import (
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
)

// --- Stock item ---

// BatchResponse is one batch in FEFO order.
type BatchResponse struct {
	ID         string      `json:"id"`
	Quantity   int64       `json:"quantity"`
	ExpiryDate types.Date  `json:"expiryDate"`
	LocationID string      `json:"locationId,omitempty"`
	UnitCost   types.Money `json:"unitCost"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// StockItemResponse is a stock item with its batches sorted as they would be drawn.
type StockItemResponse struct {
	DepotID           string          `json:"depotId"`
	ItemID            string          `json:"itemId"`
	ItemName          string          `json:"itemName,omitempty"`
	TotalQuantity     int64           `json:"totalQuantity"`
	AllocatedQuantity int64           `json:"allocatedQuantity"`
	DamagedQuantity   int64           `json:"damagedQuantity"`
	Available         int64           `json:"available"`
	Batches           []BatchResponse `json:"batches"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func FromBatch(b stock.Batch) BatchResponse {
	return BatchResponse{
		ID:         string(b.ID),
		Quantity:   b.Quantity.Int64(),
		ExpiryDate: b.ExpiryDate,
		LocationID: b.LocationID,
		UnitCost:   b.UnitCost,
		ReceivedAt: b.ReceivedAt,
	}
}

// FromStockItem builds the response; sorted is the item's batches in draw order.
func FromStockItem(item stock.StockItem, sorted []stock.Batch) StockItemResponse {
	batches := make([]BatchResponse, len(sorted))
	for i, b := range sorted {
		batches[i] = FromBatch(b)
	}
	return StockItemResponse{
		DepotID:           item.DepotID,
		ItemID:            item.ItemID,
		ItemName:          item.ItemName,
		TotalQuantity:     item.TotalQuantity.Int64(),
		AllocatedQuantity: item.AllocatedQuantity.Int64(),
		DamagedQuantity:   item.DamagedQuantity.Int64(),
		Available:         item.Available().Int64(),
		Batches:           batches,
		Version:           item.Version,
		UpdatedAt:         item.UpdatedAt,
	}
}

// --- Receipts and damage ---

// ReceiptRequest receives one batch.
type ReceiptRequest struct {
	BatchID    string `json:"batchId"`
	ItemName   string `json:"itemName"`
	Quantity   int64  `json:"quantity" binding:"required,gt=0"`
	ExpiryDate string `json:"expiryDate"`
	LocationID string `json:"locationId"`
	UnitCost   string `json:"unitCost"`
}

// ToInput converts the request for the allocation service.
func (r ReceiptRequest) ToInput(key stock.Key) (allocation.ReceiptInput, error) {
	expiry, err := types.ParseDate(r.ExpiryDate)
	if err != nil {
		return allocation.ReceiptInput{}, apperror.NewValidation("invalid expiryDate").
			WithDetail("field", "expiryDate").WithCause(err)
	}
	cost := types.Zero()
	if r.UnitCost != "" {
		cost, err = types.NewMoneyFromString(r.UnitCost)
		if err != nil {
			return allocation.ReceiptInput{}, apperror.NewValidation("invalid unitCost").
				WithDetail("field", "unitCost").WithCause(err)
		}
	}
	return allocation.ReceiptInput{
		Key:        key,
		ItemName:   r.ItemName,
		BatchID:    stock.BatchID(r.BatchID),
		Quantity:   types.Quantity(r.Quantity),
		ExpiryDate: expiry,
		LocationID: r.LocationID,
		UnitCost:   cost,
	}, nil
}

// ReceiptResponse is the stored batch plus the updated item.
type ReceiptResponse struct {
	Batch BatchResponse     `json:"batch"`
	Item  StockItemResponse `json:"item"`
}

// QuantityRequest carries a bare positive quantity.
type QuantityRequest struct {
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// --- Orders ---

// OrderLineRequest is one item line.
type OrderLineRequest struct {
	ItemID   string `json:"itemId" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

func toOrderLines(lines []OrderLineRequest) []allocation.OrderLine {
	out := make([]allocation.OrderLine, len(lines))
	for i, l := range lines {
		out[i] = allocation.OrderLine{ItemID: l.ItemID, Quantity: types.Quantity(l.Quantity)}
	}
	return out
}

// OrderRequest is a multi-item hold or allocation.
type OrderRequest struct {
	RefID string             `json:"refId" binding:"required"`
	Lines []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func (r OrderRequest) OrderLines() []allocation.OrderLine { return toOrderLines(r.Lines) }

// LinesRequest carries lines for a reference given in the path.
type LinesRequest struct {
	Lines []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func (r LinesRequest) OrderLines() []allocation.OrderLine { return toOrderLines(r.Lines) }

// CancelRequest lists holds to release on top of reversing committed allocations.
type CancelRequest struct {
	ReleaseLines []OrderLineRequest `json:"releaseLines" binding:"dive"`
}

func (r CancelRequest) OrderLines() []allocation.OrderLine { return toOrderLines(r.ReleaseLines) }

// EditRequest replaces a reference's allocation with new lines.
type EditRequest struct {
	Kind  string             `json:"kind" binding:"required,oneof=invoice stock_out dispatch"`
	Lines []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func (r EditRequest) OrderLines() []allocation.OrderLine { return toOrderLines(r.Lines) }

// --- Transfers ---

// TransferRequest moves stock of one item between depots.
type TransferRequest struct {
	FromDepotID string `json:"fromDepotId" binding:"required"`
	ToDepotID   string `json:"toDepotId" binding:"required,nefield=FromDepotID"`
	ItemID      string `json:"itemId" binding:"required"`
	RefID       string `json:"refId"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0"`
	LocationID  string `json:"locationId"`
}

func (r TransferRequest) ToInput() allocation.TransferInput {
	return allocation.TransferInput{
		FromDepotID: r.FromDepotID,
		ToDepotID:   r.ToDepotID,
		ItemID:      r.ItemID,
		RefID:       r.RefID,
		Quantity:    types.Quantity(r.Quantity),
		LocationID:  r.LocationID,
	}
}

// --- Preview ---

// PreviewResponse shows which batches an allocation would draw, without committing.
type PreviewResponse struct {
	DepotID   string      `json:"depotId"`
	ItemID    string      `json:"itemId"`
	Requested int64       `json:"requested"`
	Lines     []fefo.Line `json:"lines"`
	Cost      types.Money `json:"cost"`
}

func FromPreview(res fefo.Result) PreviewResponse {
	lines := res.Lines
	if lines == nil {
		lines = []fefo.Line{}
	}
	return PreviewResponse{
		DepotID:   res.DepotID,
		ItemID:    res.ItemID,
		Requested: res.Requested.Int64(),
		Lines:     lines,
		Cost:      res.Cost(),
	}
}
