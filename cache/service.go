package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-resource/internal/cacheinfra"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCacheMiss is returned by CacheService.Get when the key is absent or expired.
var ErrCacheMiss = cacheinfra.ErrCacheMiss

// ErrInvalidResultType reports a cached payload that cannot be decoded into
// the requested type.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// CacheService is the byte oriented backend contract. Values are opaque to
// the backend; typed access goes through Load, Store and GetOrFetch.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// FetchFn is the function signature used to load a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Load reads key and decodes it into T. The boolean reports a hit.
func Load[T any](ctx context.Context, service CacheService, key string) (T, bool, error) {
	var zero T

	raw, err := service.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}

	var out T
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", ErrInvalidResultType, key, err)
	}
	return out, true, nil
}

// Store encodes value and writes it under key.
func Store[T any](ctx context.Context, service CacheService, key string, value T, ttl time.Duration) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return service.Set(ctx, key, raw, ttl)
}

// GetOrFetch is a read-through helper: it returns the cached value for key or
// calls fetchFn and stores its result. A cached payload that fails to decode
// is treated as a miss and overwritten. The boolean reports a cache hit.
// A failed write is returned together with the fetched value.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, ttl time.Duration, fetchFn FetchFn[T]) (T, bool, error) {
	value, hit, err := Load[T](ctx, service, key)
	if err != nil && !errors.Is(err, ErrInvalidResultType) {
		var zero T
		return zero, false, err
	}
	if hit {
		return value, true, nil
	}

	value, err = fetchFn(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if err := Store(ctx, service, key, value, ttl); err != nil {
		return value, false, err
	}
	return value, false, nil
}
