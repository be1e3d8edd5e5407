package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the key/value store the portal persists its session into
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A non-positive ttl keeps the value until
	// it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// Key joins a namespace and its parts into a cache key
func Key(namespace string, parts ...string) string {
	key := namespace
	for _, p := range parts {
		if p == "" {
			continue
		}
		key += ":" + p
	}
	return key
}
