package resource

import "context"

type withDeletedKey struct{}

// WithDeleted returns a context under which reads also see soft deleted
// records. Such reads bypass the object cache.
func WithDeleted(ctx context.Context) context.Context {
	return context.WithValue(ctx, withDeletedKey{}, true)
}

// IncludesDeleted reports whether ctx was produced by WithDeleted.
func IncludesDeleted(ctx context.Context) bool {
	v, _ := ctx.Value(withDeletedKey{}).(bool)
	return v
}
