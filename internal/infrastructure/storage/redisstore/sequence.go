package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"depotstock/pkg/numerator"
)

const sequenceKeyPrefix = "seq:"

// SequenceSource backs document numbering with INCRBY counters.
type SequenceSource struct {
	client redis.UniversalClient
}

func NewSequenceSource(client redis.UniversalClient) *SequenceSource {
	return &SequenceSource{client: client}
}

// Reserve implements numerator.Source.
func (s *SequenceSource) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	last, err := s.client.IncrBy(ctx, sequenceKeyPrefix+key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("reserve sequence %s: %w", key, err)
	}
	return last, nil
}

// Set implements numerator.Source.
func (s *SequenceSource) Set(ctx context.Context, key string, value int64) error {
	if err := s.client.Set(ctx, sequenceKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}

var _ numerator.Source = (*SequenceSource)(nil)
