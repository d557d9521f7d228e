package fefo

import (
	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/stock"
)

// Request asks for qty of one item in one depot.
type Request struct {
	stock.Key
	Quantity types.Quantity `json:"quantity"`
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("requested quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("item_id", r.ItemID)
	}
	return nil
}

// Line is one batch draw. The recorded expiry, location and cost let a
// reversal re-create a batch that was exhausted.
type Line struct {
	BatchID    stock.BatchID  `json:"batchId"`
	Quantity   types.Quantity `json:"quantity"`
	ExpiryDate types.Date     `json:"expiryDate"`
	LocationID string         `json:"locationId,omitempty"`
	UnitCost   types.Money    `json:"unitCost"`
}

// Result lists the batch draws for one request, ordered by ascending expiry.
type Result struct {
	stock.Key
	Requested types.Quantity `json:"requested"`
	Lines     []Line         `json:"lines"`
}

// Total returns the quantity drawn across lines.
func (r Result) Total() types.Quantity {
	var total types.Quantity
	for _, l := range r.Lines {
		total += l.Quantity
	}
	return total
}

// Cost returns the valuation of the drawn stock at batch unit cost.
func (r Result) Cost() types.Money {
	cost := types.Zero()
	for _, l := range r.Lines {
		cost = cost.Add(types.Extend(l.UnitCost, l.Quantity))
	}
	return cost
}
