package contract

import (
	"context"
	"time"
)

// TourStateRepository is the key-value store behind tooltip seen sets and
// tour-in-progress flags. Get returns found=false for missing or expired keys.
type TourStateRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}
