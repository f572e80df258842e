// Package cache provides the expiring key/value stores behind credential sessions
// and request rate limiting.
package cache

import (
	"context"
	"errors"
	"time"
)

var errNotInitialised = errors.New("cache: store not initialised")

// Store is an expiring key/value store shared across requests.
// A non-positive ttl on Set means the entry does not expire.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Pruner is implemented by stores that keep expired entries until swept.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
