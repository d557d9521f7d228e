package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/domain/offline"
)

// maxHeadAttempts bounds reruns of a watched head pop interrupted by enqueues.
const maxHeadAttempts = 5

// Queue keeps one Redis list per depot: RPUSH to enqueue, LINDEX 0 to peek,
// a watched LPOP to ack. Dead letters go to a second list.
type Queue struct {
	client redis.UniversalClient
	name   string
}

// NewQueue creates a queue; name namespaces the keys (QUEUE_NAME).
func NewQueue(client redis.UniversalClient, name string) *Queue {
	if name == "" {
		name = "offline"
	}
	return &Queue{client: client, name: name}
}

func (q *Queue) listKey(depotID string) string { return q.name + ":queue:" + depotID }
func (q *Queue) deadKey(depotID string) string { return q.name + ":dead:" + depotID }
func (q *Queue) depotsKey() string             { return q.name + ":depots" }

func (q *Queue) Enqueue(ctx context.Context, req offline.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode offline request: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, q.listKey(req.DepotID), payload)
		pipe.SAdd(ctx, q.depotsKey(), req.DepotID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue offline request: %w", err)
	}
	return nil
}

func (q *Queue) Peek(ctx context.Context, depotID string) (offline.Request, bool, error) {
	raw, err := q.client.LIndex(ctx, q.listKey(depotID), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return offline.Request{}, false, nil
	}
	if err != nil {
		return offline.Request{}, false, fmt.Errorf("peek offline queue: %w", err)
	}
	var req offline.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return offline.Request{}, false, fmt.Errorf("decode offline request: %w", err)
	}
	return req, true, nil
}

func (q *Queue) Ack(ctx context.Context, depotID, requestID string) error {
	if err := q.popHead(ctx, depotID, requestID, nil); err != nil {
		return fmt.Errorf("ack offline request: %w", err)
	}
	return nil
}

func (q *Queue) DeadLetter(ctx context.Context, depotID string, dl offline.DeadLetter) error {
	if dl.At.IsZero() {
		dl.At = time.Now().UTC()
	}
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := q.popHead(ctx, depotID, dl.Request.ID, payload); err != nil {
		return fmt.Errorf("dead-letter offline request: %w", err)
	}
	return nil
}

// popHead removes the head only while it is still requestID, watching the list
// so a concurrent pop or push reruns the check. A non-nil dead payload is
// appended to the dead-letter list in the same transaction.
func (q *Queue) popHead(ctx context.Context, depotID, requestID string, dead []byte) error {
	key := q.listKey(depotID)
	for range maxHeadAttempts {
		err := q.client.Watch(ctx, func(tx *redis.Tx) error {
			head, err := q.headID(ctx, tx, key)
			if err != nil {
				return err
			}
			if head != requestID {
				return offline.ErrHeadMoved
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LPop(ctx, key)
				if dead != nil {
					pipe.RPush(ctx, q.deadKey(depotID), dead)
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("queue %s kept changing: %w", depotID, redis.TxFailedErr)
}

func (q *Queue) headID(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	raw, err := tx.LIndex(ctx, key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("decode offline request: %w", err)
	}
	return head.ID, nil
}

func (q *Queue) Len(ctx context.Context, depotID string) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey(depotID)).Result()
	if err != nil {
		return 0, fmt.Errorf("offline queue length: %w", err)
	}
	return n, nil
}

func (q *Queue) DeadLetters(ctx context.Context, depotID string) ([]offline.DeadLetter, error) {
	raws, err := q.client.LRange(ctx, q.deadKey(depotID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]offline.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl offline.DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}

func (q *Queue) Depots(ctx context.Context) ([]string, error) {
	depots, err := q.client.SMembers(ctx, q.depotsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list queued depots: %w", err)
	}
	slices.Sort(depots)
	return depots, nil
}

var _ offline.Queue = (*Queue)(nil)
