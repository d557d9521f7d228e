// Package allocation commits FEFO allocations against the stock store.
// Every call site (invoice fulfilment, manual stock-out, dispatch picking,
// transfers, offline replay) goes through Service.
package allocation

import (
	"fmt"
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
)

// Kind identifies the workflow that drew the stock.
type Kind string

const (
	KindInvoice     Kind = "invoice"
	KindStockOut    Kind = "stock_out"
	KindDispatch    Kind = "dispatch"
	KindTransferOut Kind = "transfer_out"
)

// Prefix returns the document number prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindInvoice:
		return "INV"
	case KindStockOut:
		return "SO"
	case KindDispatch:
		return "DSP"
	case KindTransferOut:
		return "TRF"
	default:
		return "ALC"
	}
}

// ReleasesHold reports whether committing this kind consumes the order's soft hold.
func (k Kind) ReleasesHold() bool {
	return k == KindInvoice || k == KindDispatch
}

// Validate checks the kind is one of the order-driven allocations.
func (k Kind) Validate() error {
	switch k {
	case KindInvoice, KindStockOut, KindDispatch:
		return nil
	case KindTransferOut:
		return apperror.NewValidation("transfers are edited by cancelling and re-issuing").
			WithDetail("kind", string(k))
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown allocation kind %q", k)).
			WithDetail("kind", string(k))
	}
}

// Status of an allocation record.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusReversed  Status = "reversed"
)

// Record is the persisted traceability entry of one committed per-item
// allocation: which batches and expiry dates were shipped for a reference.
type Record struct {
	ID     id.ID  `json:"id" db:"id"`
	Number string `json:"number" db:"number"`
	Kind   Kind   `json:"kind" db:"kind"`
	RefID  string `json:"refId" db:"ref_id"`

	stock.Key

	Lines    []fefo.Line    `json:"lines" db:"lines"`
	Quantity types.Quantity `json:"quantity" db:"quantity"`
	Cost     types.Money    `json:"cost" db:"cost"`

	// HoldReleased is how much of the order's soft hold this allocation consumed.
	HoldReleased types.Quantity `json:"holdReleased" db:"hold_released"`

	Status     Status     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	ReversedAt *time.Time `json:"reversedAt,omitempty" db:"reversed_at"`
}

// NewRecord builds a committed record from an allocator result.
func NewRecord(kind Kind, refID string, res fefo.Result, holdReleased types.Quantity) Record {
	return Record{
		ID:           id.New(),
		Kind:         kind,
		RefID:        refID,
		Key:          res.Key,
		Lines:        res.Lines,
		Quantity:     res.Total(),
		Cost:         res.Cost(),
		HoldReleased: holdReleased,
		Status:       StatusCommitted,
		CreatedAt:    time.Now().UTC(),
	}
}

// Result rebuilds the allocator result for reversal.
func (r Record) Result() fefo.Result {
	return fefo.Result{Key: r.Key, Requested: r.Quantity, Lines: r.Lines}
}

// IsCommitted reports whether the record still holds stock out of the depot.
func (r Record) IsCommitted() bool {
	return r.Status == StatusCommitted
}

// OrderLine is one item/quantity pair of a multi-item operation.
type OrderLine struct {
	ItemID   string         `json:"itemId" validate:"required"`
	Quantity types.Quantity `json:"quantity" validate:"gt=0"`
}

// LineFailure names the line that stopped a multi-item operation.
type LineFailure struct {
	LineNo   int            `json:"lineNo"`
	ItemID   string         `json:"itemId"`
	Quantity types.Quantity `json:"quantity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
}

// Outcome reports what a multi-item operation committed.
// In independent mode, Records/Held keep the lines committed before Failed.
// In compensate mode those lines were rolled back and Compensated is set.
type Outcome struct {
	Kind        string       `json:"kind"`
	RefID       string       `json:"refId"`
	Records     []Record     `json:"records,omitempty"`
	Held        []OrderLine  `json:"held,omitempty"`
	Failed      *LineFailure `json:"failed,omitempty"`
	Compensated bool         `json:"compensated,omitempty"`
}

// Quantity returns the total committed by the outcome.
func (o Outcome) Quantity() types.Quantity {
	var total types.Quantity
	for _, r := range o.Records {
		total += r.Quantity
	}
	for _, h := range o.Held {
		total += h.Quantity
	}
	return total
}

// ReceiptInput describes one goods-receipt line.
type ReceiptInput struct {
	stock.Key
	ItemName   string
	BatchID    stock.BatchID
	Quantity   types.Quantity
	ExpiryDate types.Date
	LocationID string
	UnitCost   types.Money
}

// TransferInput moves stock of one item between depots.
type TransferInput struct {
	FromDepotID string
	ToDepotID   string
	ItemID      string
	RefID       string
	Quantity    types.Quantity
	// LocationID overrides the source batch location at the destination.
	LocationID string
}

// Validate checks the transfer shape.
func (in TransferInput) Validate() error {
	if in.FromDepotID == "" || in.ToDepotID == "" {
		return apperror.NewValidation("source and destination depots are required")
	}
	if in.FromDepotID == in.ToDepotID {
		return apperror.NewValidation("source and destination depots must differ").
			WithDetail("depot_id", in.FromDepotID)
	}
	if in.ItemID == "" {
		return apperror.NewValidation("item is required").WithDetail("field", "itemId")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("transfer quantity must be positive").WithDetail("field", "quantity")
	}
	return nil
}

// TransferResult is the outbound record plus the batches received at the destination.
type TransferResult struct {
	Record   Record        `json:"record"`
	Received []stock.Batch `json:"received"`
}

// CancelResult lists the reversed records and the released holds.
type CancelResult struct {
	Reversed []Record    `json:"reversed"`
	Released []OrderLine `json:"released"`
}

// Defect is a broken allocator invariant with the input that produced it.
type Defect struct {
	Key       stock.Key
	Requested types.Quantity
	Snapshot  stock.StockItem
	Err       error
	At        time.Time
}

// ExpiryStatus classifies a batch by days left.
type ExpiryStatus string

const (
	ExpiryExpired      ExpiryStatus = "expired"
	ExpiryExpiring     ExpiryStatus = "expiring"
	ExpiryExpiringSoon ExpiryStatus = "expiring_soon"
	ExpiryOK           ExpiryStatus = "ok"
)

// ClassifyExpiry: expired before asOf, expiring within 30 days, expiring soon within 90.
func ClassifyExpiry(expiry, asOf types.Date) ExpiryStatus {
	days := asOf.DaysUntil(expiry)
	switch {
	case days < 0:
		return ExpiryExpired
	case days <= 30:
		return ExpiryExpiring
	case days <= 90:
		return ExpiryExpiringSoon
	default:
		return ExpiryOK
	}
}

// ExpiringBatch is one row of the expiry report.
type ExpiringBatch struct {
	stock.Key
	ItemName string       `json:"itemName,omitempty"`
	Batch    stock.Batch  `json:"batch"`
	DaysLeft int          `json:"daysLeft"`
	Status   ExpiryStatus `json:"status"`
}
