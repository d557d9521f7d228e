package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/core/apperror"
	"depotstock/internal/domain/stock"
)

const stockKeyPrefix = "stock:"

func stockKey(k stock.Key) string {
	return stockKeyPrefix + k.DepotID + ":" + k.ItemID
}

func depotIndexKey(depotID string) string {
	return stockKeyPrefix + "depot:" + depotID
}

// StockRepo stores each StockItem as one JSON value.
type StockRepo struct {
	client redis.UniversalClient
}

func NewStockRepo(client redis.UniversalClient) *StockRepo {
	return &StockRepo{client: client}
}

// Get implements stock.Repository.
func (r *StockRepo) Get(ctx context.Context, key stock.Key) (stock.StockItem, error) {
	raw, err := r.client.Get(ctx, stockKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stock.StockItem{}, apperror.NewNotFound("stock_item", key.String())
	}
	if err != nil {
		return stock.StockItem{}, fmt.Errorf("get stock item %s: %w", key, err)
	}
	return decodeItem(raw)
}

// Save implements stock.Repository. The stored version is read under WATCH;
// the write is queued in MULTI and aborted by Redis if the key changed.
func (r *StockRepo) Save(ctx context.Context, item *stock.StockItem) error {
	key := stockKey(item.Key)

	next := item.Clone()
	next.Version = item.Version + 1
	next.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode stock item: %w", err)
	}

	conflict := apperror.NewConcurrentModification("stock_item", item.Key.String())

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if item.Version != 0 {
				return conflict
			}
		case err != nil:
			return err
		default:
			stored, err := decodeItem(raw)
			if err != nil {
				return err
			}
			if stored.Version != item.Version {
				return conflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, depotIndexKey(item.DepotID), item.ItemID)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr):
		return conflict
	case apperror.IsConcurrentModification(err):
		return err
	default:
		return fmt.Errorf("save stock item %s: %w", item.Key, err)
	}

	item.Version = next.Version
	item.UpdatedAt = next.UpdatedAt
	return nil
}

// ListByDepot implements stock.Repository.
func (r *StockRepo) ListByDepot(ctx context.Context, depotID string) ([]stock.StockItem, error) {
	itemIDs, err := r.client.SMembers(ctx, depotIndexKey(depotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list depot %s: %w", depotID, err)
	}
	if len(itemIDs) == 0 {
		return nil, nil
	}
	slices.Sort(itemIDs)

	keys := make([]string, len(itemIDs))
	for i, itemID := range itemIDs {
		keys[i] = stockKey(stock.Key{DepotID: depotID, ItemID: itemID})
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load depot %s: %w", depotID, err)
	}

	items := make([]stock.StockItem, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		item, err := decodeItem([]byte(s))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b stock.StockItem) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return items, nil
}

func decodeItem(raw []byte) (stock.StockItem, error) {
	var item stock.StockItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return stock.StockItem{}, fmt.Errorf("decode stock item: %w", err)
	}
	if item.Batches == nil {
		item.Batches = make(map[stock.BatchID]stock.Batch)
	}
	return item, nil
}

var _ stock.Repository = (*StockRepo)(nil)
