// Package main provides a CLI tool for loading opening stock into a depot.
//
// Usage:
//
//	seed receipts.json
//
// The file holds a JSON array of receipts:
//
//	[{"depotId":"central","itemId":"amox-500","batchId":"B-1","quantity":100,"expiryDate":"2026-03-31"}]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"depotstock/internal/app"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/http/v1/dto"
	"depotstock/pkg/logger"
)

// seedReceipt is one line of the seed file.
type seedReceipt struct {
	DepotID string `json:"depotId"`
	ItemID  string `json:"itemId"`
	dto.ReceiptRequest
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		log.Fatal("usage: seed <receipts.json>")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.StoreDriver == app.DriverMemory {
		log.Fatal("seeding the memory store is pointless; set STORE_DRIVER=redis or postgres")
	}

	receipts, err := readReceipts(os.Args[1])
	if err != nil {
		log.Fatalw("failed to read receipts", "error", err)
	}

	ctx := context.Background()
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open stores", "error", err)
	}
	defer stores.Close()

	svc := app.NewAllocationService(cfg, stores, nil)

	var loaded int
	for i, r := range receipts {
		in, err := r.ToInput(stock.Key{DepotID: r.DepotID, ItemID: r.ItemID})
		if err != nil {
			log.Fatalw("invalid receipt", "line", i+1, "error", err)
		}
		batch, item, err := svc.Receive(ctx, in)
		if err != nil {
			log.Fatalw("failed to receive", "line", i+1, "item_id", r.ItemID, "error", err)
		}
		log.Infow("received",
			"depot_id", item.DepotID,
			"item_id", item.ItemID,
			"batch_id", batch.ID,
			"total", item.TotalQuantity,
		)
		loaded++
	}

	log.Infow("seed complete", "receipts", loaded)
}

func readReceipts(path string) ([]seedReceipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var receipts []seedReceipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return receipts, nil
}
