package implementation

import (
	"context"
	"errors"
	"time"

	"loyalty-rewards-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

type redisTourStateRepository struct {
	rdb *redis.Client
}

// NewRedisTourStateRepository keeps tour state in Redis so every instance
// behind the load balancer sees the same seen sets and flags.
func NewRedisTourStateRepository(rdb *redis.Client) contract.TourStateRepository {
	return &redisTourStateRepository{rdb: rdb}
}

func (r *redisTourStateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *redisTourStateRepository) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *redisTourStateRepository) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisTourStateRepository) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}
