// Package cache provides the byte oriented cache contract used by resources,
// typed read-through helpers, and stable key fingerprints.
//
// # Backends
//
// NewCacheService builds either a sturdyc backed store (sharded, bounded,
// evicting) or an unbounded in-process map. Both honour a per entry TTL and
// support DeleteByPrefix, which is how list results are invalidated.
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	svc = cache.Tolerant(svc, logger)
//
// Tolerant turns backend failures into misses so that a cache outage only
// costs latency.
//
// # Typed access
//
// Values are encoded with msgpack, so every read returns a fresh copy:
//
//	page, hit, err := cache.GetOrFetch(ctx, svc, key, time.Minute, func(ctx context.Context) (Page, error) {
//		return loadPage(ctx)
//	})
//
// # Keys
//
// Key joins namespace segments with KeySeparator. Fingerprint hashes the
// canonical serialization of arbitrary arguments with xxhash; map keys are
// sorted, so two maps with the same content always hash the same.
package cache
