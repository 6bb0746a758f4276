package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeCacheUnavailable tags backend failures swallowed by Tolerant.
const TextCodeCacheUnavailable = "CACHE_UNAVAILABLE"

type tolerantService struct {
	next   CacheService
	logger *slog.Logger
}

// Tolerant wraps a backend so that its failures never reach the caller.
// Read errors degrade to ErrCacheMiss and write errors are dropped; both are
// logged as warnings. Canceled contexts are still reported.
func Tolerant(next CacheService, logger *slog.Logger) CacheService {
	if logger == nil {
		logger = slog.Default()
	}
	if t, ok := next.(*tolerantService); ok {
		return t
	}
	return &tolerantService{next: next, logger: logger}
}

func (t *tolerantService) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := t.next.Get(ctx, key)
	if err == nil || errors.Is(err, ErrCacheMiss) {
		return value, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	t.report("get", key, err)
	return nil, ErrCacheMiss
}

func (t *tolerantService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.swallow(ctx, "set", key, t.next.Set(ctx, key, value, ttl))
}

func (t *tolerantService) Delete(ctx context.Context, key string) error {
	return t.swallow(ctx, "delete", key, t.next.Delete(ctx, key))
}

func (t *tolerantService) DeleteByPrefix(ctx context.Context, prefix string) error {
	return t.swallow(ctx, "delete_prefix", prefix, t.next.DeleteByPrefix(ctx, prefix))
}

func (t *tolerantService) swallow(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	t.report(op, key, err)
	return nil
}

func (t *tolerantService) report(op, key string, err error) {
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "cache backend unavailable").
		WithTextCode(TextCodeCacheUnavailable).
		WithSeverity(goerrors.SeverityWarning).
		WithMetadata(map[string]any{"operation": op, "key": key})
	goerrors.LogBySeverity(t.logger, wrapped)
}
