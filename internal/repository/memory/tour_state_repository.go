package memory

import (
	"context"
	"time"

	"loyalty-rewards-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type TourStateRepository struct {
	cache *cache.Cache
}

func NewTourStateRepository() contract.TourStateRepository {
	// Entries never expire unless written with a TTL; expired flags are
	// purged every minute.
	c := cache.New(cache.NoExpiration, time.Minute)
	return &TourStateRepository{
		cache: c,
	}
}

func (r *TourStateRepository) Get(_ context.Context, key string) (string, bool, error) {
	if x, found := r.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (r *TourStateRepository) Set(_ context.Context, key, value string) error {
	r.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (r *TourStateRepository) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	r.cache.Set(key, value, ttl)
	return nil
}

func (r *TourStateRepository) Remove(_ context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}
