package allocation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
	"depotstock/pkg/logger"
)

// Receive books one goods-receipt line as a new batch.
func (s *Service) Receive(ctx context.Context, in ReceiptInput) (stock.Batch, stock.StockItem, error) {
	var received stock.Batch
	item, err := s.mutate(ctx, "receive", in.Key, true, func(item *stock.StockItem) error {
		if item.ItemName == "" {
			item.ItemName = in.ItemName
		}
		b, err := item.AddBatch(stock.Batch{
			ID:         in.BatchID,
			Quantity:   in.Quantity,
			ExpiryDate: in.ExpiryDate,
			LocationID: in.LocationID,
			UnitCost:   in.UnitCost,
		})
		if err != nil {
			return err
		}
		received = b
		return nil
	})
	if err != nil {
		return stock.Batch{}, stock.StockItem{}, err
	}

	logger.Info(ctx, "goods received",
		"key", in.Key.String(), "batch_id", received.ID, "quantity", received.Quantity.Int64())
	return received, item, nil
}

// Hold places soft holds for an order. No batch is touched.
func (s *Service) Hold(ctx context.Context, depotID, refID string, lines []OrderLine) (Outcome, error) {
	out := Outcome{Kind: "hold", RefID: refID}
	if err := validateLines(depotID, lines); err != nil {
		return out, err
	}

	for i, line := range lines {
		key := stock.Key{DepotID: depotID, ItemID: line.ItemID}
		_, err := s.mutate(ctx, "hold", key, false, func(item *stock.StockItem) error {
			return item.Hold(line.Quantity)
		})
		if err != nil {
			err = s.failLine(ctx, &out, i, line, err)
			if s.cfg.Mode == ModeCompensate {
				s.releaseHolds(ctx, depotID, out.Held)
				out.Held = nil
				out.Compensated = true
			}
			return out, err
		}
		out.Held = append(out.Held, line)
	}

	s.metrics.AllocationCommitted(out.Kind, out.Quantity())
	logger.Info(ctx, "order held", "depot_id", depotID, "ref", refID, "lines", len(lines))
	return out, nil
}

// FulfilInvoice completes a pending invoice: FEFO draw plus hold release per line.
func (s *Service) FulfilInvoice(ctx context.Context, depotID, refID string, lines []OrderLine) (Outcome, error) {
	return s.allocateLines(ctx, KindInvoice, depotID, refID, lines)
}

// StockOut is a manual stock-out. Holds are left alone.
func (s *Service) StockOut(ctx context.Context, depotID, refID string, lines []OrderLine) (Outcome, error) {
	return s.allocateLines(ctx, KindStockOut, depotID, refID, lines)
}

// Dispatch picks an order in the warehouse: FEFO draw plus hold release per line.
func (s *Service) Dispatch(ctx context.Context, depotID, refID string, lines []OrderLine) (Outcome, error) {
	return s.allocateLines(ctx, KindDispatch, depotID, refID, lines)
}

// Allocate runs the operation for kind. Used by Edit and offline replay.
func (s *Service) Allocate(ctx context.Context, kind Kind, depotID, refID string, lines []OrderLine) (Outcome, error) {
	if err := kind.Validate(); err != nil {
		return Outcome{Kind: string(kind), RefID: refID}, err
	}
	return s.allocateLines(ctx, kind, depotID, refID, lines)
}

// allocateLines processes lines sequentially, one transaction per item.
func (s *Service) allocateLines(ctx context.Context, kind Kind, depotID, refID string, lines []OrderLine) (Outcome, error) {
	out := Outcome{Kind: string(kind), RefID: refID}
	if err := validateLines(depotID, lines); err != nil {
		return out, err
	}

	for i, line := range lines {
		rec, err := s.allocateLine(ctx, kind, depotID, refID, line)
		if err != nil {
			err = s.failLine(ctx, &out, i, line, err)
			if s.cfg.Mode == ModeCompensate && len(out.Records) > 0 {
				s.compensate(ctx, out.Records)
				out.Records = nil
				out.Compensated = true
			}
			return out, err
		}
		out.Records = append(out.Records, rec)
		s.metrics.AllocationCommitted(string(kind), rec.Quantity)
	}

	logger.Info(ctx, "stock allocated",
		"kind", kind, "depot_id", depotID, "ref", refID, "lines", len(lines), "quantity", out.Quantity().Int64())
	return out, nil
}

// allocateLine commits one item's FEFO draw and its record.
func (s *Service) allocateLine(ctx context.Context, kind Kind, depotID, refID string, line OrderLine) (Record, error) {
	key := stock.Key{DepotID: depotID, ItemID: line.ItemID}

	var (
		rec      Record
		snapshot stock.StockItem
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var (
			res      fefo.Result
			released types.Quantity
		)
		_, err := s.mutate(ctx, string(kind), key, false, func(item *stock.StockItem) error {
			snapshot = item.Clone()
			r, next, err := s.allocator.Allocate(*item, line.Quantity)
			if err != nil {
				return err
			}
			released = 0
			if kind.ReleasesHold() {
				released = next.ReleaseHold(line.Quantity)
			}
			*item = next
			res = r
			return nil
		})
		if err != nil {
			return err
		}

		rec = NewRecord(kind, refID, res, released)
		if s.numerator != nil {
			number, err := s.numerator.Next(ctx, kind.Prefix())
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			rec.Number = number
		}
		if err := s.records.Create(ctx, &rec); err != nil {
			return fmt.Errorf("create allocation record: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperror.IsAllocationInconsistency(err) {
			s.reportDefect(ctx, key, line.Quantity, snapshot, err)
		}
		return Record{}, err
	}
	return rec, nil
}

// failLine annotates err with the failing line and fills out.Failed.
func (s *Service) failLine(ctx context.Context, out *Outcome, idx int, line OrderLine, err error) error {
	lineNo := idx + 1
	code := apperror.CodeInternal
	msg := err.Error()
	if appErr, ok := apperror.AsAppError(err); ok {
		appErr.WithDetail("line_no", lineNo).WithDetail("item_id", line.ItemID)
		code = appErr.Code
		msg = appErr.Message
	} else {
		err = apperror.NewInternal(err).WithDetail("line_no", lineNo).WithDetail("item_id", line.ItemID)
	}
	out.Failed = &LineFailure{
		LineNo:   lineNo,
		ItemID:   line.ItemID,
		Quantity: line.Quantity,
		Code:     code,
		Message:  msg,
	}
	s.metrics.AllocationFailed(out.Kind, code)
	logger.Warn(ctx, "allocation line failed",
		"kind", out.Kind, "ref", out.RefID, "line_no", lineNo, "item_id", line.ItemID, "code", code)
	return err
}

// compensate reverses records committed earlier in the same operation, newest first.
func (s *Service) compensate(ctx context.Context, recs []Record) {
	for _, rec := range slices.Backward(recs) {
		if err := s.reverseRecord(ctx, rec, true); err != nil {
			logger.Error(ctx, "compensation failed, record left committed",
				"record_id", rec.ID, "number", rec.Number, "key", rec.Key.String(), "error", err)
		}
	}
}

func (s *Service) releaseHolds(ctx context.Context, depotID string, lines []OrderLine) []OrderLine {
	var released []OrderLine
	for _, line := range slices.Backward(lines) {
		var got types.Quantity
		key := stock.Key{DepotID: depotID, ItemID: line.ItemID}
		_, err := s.mutate(ctx, "release", key, false, func(item *stock.StockItem) error {
			got = item.ReleaseHold(line.Quantity)
			return nil
		})
		if err != nil {
			logger.Error(ctx, "release hold failed", "key", key.String(), "error", err)
			continue
		}
		released = append(released, OrderLine{ItemID: line.ItemID, Quantity: got})
	}
	return released
}

// reverseRecord puts a record's stock back and marks it reversed.
// With restoreHold the hold it consumed is re-established (the order stays live).
func (s *Service) reverseRecord(ctx context.Context, rec Record, restoreHold bool) error {
	if !rec.IsCommitted() {
		return nil
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.mutate(ctx, "reverse", rec.Key, false, func(item *stock.StockItem) error {
			next := s.allocator.Reverse(rec.Result(), *item)
			if restoreHold {
				next.AllocatedQuantity += rec.HoldReleased
			}
			*item = next
			return nil
		})
		if err != nil {
			return err
		}
		return s.records.MarkReversed(ctx, rec.ID, time.Now().UTC())
	})
}

// committedRecords lists a reference's live records.
func (s *Service) committedRecords(ctx context.Context, depotID, refID string) ([]Record, error) {
	recs, err := s.records.ListByRef(ctx, depotID, refID)
	if err != nil {
		return nil, storageError(err)
	}
	live := recs[:0]
	for _, r := range recs {
		if r.IsCommitted() {
			live = append(live, r)
		}
	}
	return live, nil
}

// Cancel reverses every committed record of the reference and releases the
// remaining holds named by releaseLines.
func (s *Service) Cancel(ctx context.Context, depotID, refID string, releaseLines []OrderLine) (CancelResult, error) {
	var result CancelResult
	if depotID == "" || refID == "" {
		return result, apperror.NewValidation("depot and reference are required")
	}
	if len(releaseLines) > 0 {
		if err := validateLines(depotID, releaseLines); err != nil {
			return result, err
		}
	}

	recs, err := s.committedRecords(ctx, depotID, refID)
	if err != nil {
		return result, err
	}
	for _, rec := range slices.Backward(recs) {
		if err := s.reverseRecord(ctx, rec, false); err != nil {
			return result, err
		}
		rec.Status = StatusReversed
		result.Reversed = append(result.Reversed, rec)
	}

	for _, line := range releaseLines {
		var got types.Quantity
		key := stock.Key{DepotID: depotID, ItemID: line.ItemID}
		_, err := s.mutate(ctx, "release", key, false, func(item *stock.StockItem) error {
			got = item.ReleaseHold(line.Quantity)
			return nil
		})
		if err != nil {
			return result, err
		}
		result.Released = append(result.Released, OrderLine{ItemID: line.ItemID, Quantity: got})
	}

	logger.Info(ctx, "order cancelled",
		"depot_id", depotID, "ref", refID, "reversed", len(result.Reversed), "released", len(result.Released))
	return result, nil
}

// Edit replaces a reference's allocations: committed records are reversed
// (restoring the holds they consumed), then kind runs with the new lines.
func (s *Service) Edit(ctx context.Context, depotID, refID string, kind Kind, lines []OrderLine) (Outcome, error) {
	if err := kind.Validate(); err != nil {
		return Outcome{Kind: string(kind), RefID: refID}, err
	}
	if err := validateLines(depotID, lines); err != nil {
		return Outcome{Kind: string(kind), RefID: refID}, err
	}
	if refID == "" {
		return Outcome{Kind: string(kind)}, apperror.NewValidation("reference is required")
	}

	recs, err := s.committedRecords(ctx, depotID, refID)
	if err != nil {
		return Outcome{Kind: string(kind), RefID: refID}, err
	}
	for _, rec := range slices.Backward(recs) {
		if err := s.reverseRecord(ctx, rec, true); err != nil {
			return Outcome{Kind: string(kind), RefID: refID}, err
		}
	}

	return s.allocateLines(ctx, kind, depotID, refID, lines)
}

// Transfer draws FEFO at the source depot and receives the drawn batches at
// the destination with their expiry, location and cost. If the destination
// write fails, the source draw is reversed.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	refID := in.RefID
	if refID == "" {
		refID = fmt.Sprintf("%s>%s", in.FromDepotID, in.ToDepotID)
	}

	src, err := s.stock.Get(ctx, stock.Key{DepotID: in.FromDepotID, ItemID: in.ItemID})
	if err != nil {
		return TransferResult{}, storageError(err)
	}

	rec, err := s.allocateLine(ctx, KindTransferOut, in.FromDepotID, refID, OrderLine{ItemID: in.ItemID, Quantity: in.Quantity})
	if err != nil {
		return TransferResult{}, err
	}

	dest := stock.Key{DepotID: in.ToDepotID, ItemID: in.ItemID}
	var received []stock.Batch
	_, err = s.mutate(ctx, "transfer_in", dest, true, func(item *stock.StockItem) error {
		received = received[:0]
		if item.ItemName == "" {
			item.ItemName = src.ItemName
		}
		for _, l := range rec.Lines {
			loc := l.LocationID
			if in.LocationID != "" {
				loc = in.LocationID
			}
			b, err := item.AddBatch(stock.Batch{
				Quantity:   l.Quantity,
				ExpiryDate: l.ExpiryDate,
				LocationID: loc,
				UnitCost:   l.UnitCost,
			})
			if err != nil {
				return err
			}
			received = append(received, b)
		}
		return nil
	})
	if err != nil {
		if rerr := s.reverseRecord(ctx, rec, false); rerr != nil {
			logger.Error(ctx, "transfer compensation failed",
				"record_id", rec.ID, "from", in.FromDepotID, "to", in.ToDepotID, "error", rerr)
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("compensation_failed", true)
			}
		}
		return TransferResult{}, err
	}

	logger.Info(ctx, "stock transferred",
		"from", in.FromDepotID, "to", in.ToDepotID, "item_id", in.ItemID, "quantity", in.Quantity.Int64())
	return TransferResult{Record: rec, Received: received}, nil
}

// MarkDamaged records damaged units of an item.
func (s *Service) MarkDamaged(ctx context.Context, key stock.Key, qty types.Quantity) (stock.StockItem, error) {
	return s.mutate(ctx, "mark_damaged", key, false, func(item *stock.StockItem) error {
		return item.MarkDamaged(qty)
	})
}

// WriteOffDamaged disposes of damaged units of an item.
func (s *Service) WriteOffDamaged(ctx context.Context, key stock.Key, qty types.Quantity) (stock.StockItem, error) {
	return s.mutate(ctx, "write_off", key, false, func(item *stock.StockItem) error {
		return item.WriteOffDamaged(qty)
	})
}

func validateLines(depotID string, lines []OrderLine) error {
	if depotID == "" {
		return apperror.NewValidation("depot is required").WithDetail("field", "depotId")
	}
	if len(lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for i, l := range lines {
		if l.ItemID == "" {
			return apperror.NewValidation("item is required").WithDetail("line_no", i+1)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("line_no", i+1).
				WithDetail("item_id", l.ItemID)
		}
	}
	return nil
}
