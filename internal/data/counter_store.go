package data

import (
	"context"
	"fmt"
	"strconv"

	pkgerrors "AIResilience/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// counterKeyPrefix namespaces durable counters in Redis.
const counterKeyPrefix = "airesilience:counter:"

// CounterStore implements biz.CounterStore on Redis.
// Following Kratos v2 DDD architecture, interface is defined in biz layer.
// Without Redis every method returns pkgerrors.ErrStoreUnavailable.
type CounterStore struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewCounterStore creates a new counter store.
func NewCounterStore(data *Data, logger log.Logger) *CounterStore {
	return &CounterStore{
		rdb:    data.GetRedisClient(),
		logger: log.NewHelper(logger),
	}
}

// Get returns the counter value, 0 when the key does not exist.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	if s.rdb == nil {
		return 0, pkgerrors.ErrStoreUnavailable
	}

	val, err := s.rdb.Get(ctx, counterKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter %s: %w", key, err)
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter %s: %w", key, err)
	}
	return n, nil
}

// Increment atomically adds delta and returns the new value.
func (s *CounterStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if s.rdb == nil {
		return 0, pkgerrors.ErrStoreUnavailable
	}

	n, err := s.rdb.IncrBy(ctx, counterKey(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return n, nil
}

// Reset deletes the counter.
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	if s.rdb == nil {
		return pkgerrors.ErrStoreUnavailable
	}

	if err := s.rdb.Del(ctx, counterKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset counter %s: %w", key, err)
	}
	s.logger.Infow("msg", "counter reset", "key", key)
	return nil
}

func counterKey(key string) string {
	return counterKeyPrefix + key
}
