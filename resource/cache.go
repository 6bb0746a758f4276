package resource

import (
	"context"
	"time"

	"github.com/goliatone/go-resource/cache"
)

const (
	objectSegment = "object"
	listSegment   = "list"
)

// resourceCache namespaces one resource's entries under its key prefix.
// With no backend or no prefix every method is a no-op and reads miss.
type resourceCache struct {
	svc      cache.CacheService
	keys     cache.KeySerializer
	prefix   string
	ttl      time.Duration
	resource string
	metrics  *Metrics
}

func (c *resourceCache) enabled() bool {
	return c.svc != nil && c.prefix != ""
}

func (c *resourceCache) objectKey(id string) string {
	return cache.Key(c.prefix, objectSegment, id)
}

func (c *resourceCache) listPrefix() string {
	return cache.Key(c.prefix, listSegment) + cache.KeySeparator
}

// listKey fingerprints everything that can change a list result.
func (c *resourceCache) listKey(spec FilterSpec, pageSize int, withDeleted bool) string {
	order := make([]string, len(spec.OrderBy))
	for i, o := range spec.OrderBy {
		order[i] = o.String()
	}
	bottom := -1
	if spec.Window.Bottom != nil {
		bottom = *spec.Window.Bottom
	}
	fp := cache.Fingerprint(c.keys, listSegment,
		spec.Include.canonical(),
		spec.Exclude.canonical(),
		order,
		spec.Window.Offset(pageSize),
		bottom,
		withDeleted,
	)
	return c.listPrefix() + fp
}

func (c *resourceCache) getObject(ctx context.Context, id string) (Payload, bool) {
	if !c.enabled() {
		return nil, false
	}
	p, hit, err := cache.Load[Payload](ctx, c.svc, c.objectKey(id))
	hit = hit && err == nil
	c.metrics.cacheLookup(c.resource, objectSegment, hit)
	return p, hit
}

func (c *resourceCache) putObject(ctx context.Context, id string, p Payload) {
	if !c.enabled() {
		return
	}
	_ = cache.Store(ctx, c.svc, c.objectKey(id), p, c.ttl)
}

func (c *resourceCache) deleteObject(ctx context.Context, id string) {
	if !c.enabled() {
		return
	}
	_ = c.svc.Delete(ctx, c.objectKey(id))
}

// list serves key from the cache, or runs fetch and stores its result.
// Fetch errors are returned and nothing is stored.
func (c *resourceCache) list(ctx context.Context, key string, fetch cache.FetchFn[ListResult]) (ListResult, error) {
	if !c.enabled() {
		return fetch(ctx)
	}
	res, hit, err := cache.GetOrFetch(ctx, c.svc, key, c.ttl, fetch)
	c.metrics.cacheLookup(c.resource, listSegment, hit)
	return res, err
}

func (c *resourceCache) invalidateLists(ctx context.Context) {
	if !c.enabled() {
		return
	}
	_ = c.svc.DeleteByPrefix(ctx, c.listPrefix())
}
