package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore implements usecase.CounterStore using Redis. Counters are
// shared across all instances, so fixed-window limits hold under horizontal
// scaling.
type CounterStore struct {
	client *redis.Client
	prefix string
}

// NewCounterStore creates a new CounterStore.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{
		client: client,
		prefix: "counter:",
	}
}

// Increment adds one to the counter at key and returns the new count. The
// expiry is set only when absent, so it marks the window's first hit and the
// counter dies with its window.
func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()

	incr := pipe.Incr(ctx, s.prefix+key)
	pipe.ExpireNX(ctx, s.prefix+key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}
