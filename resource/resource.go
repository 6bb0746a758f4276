package resource

import (
	"context"
	"log/slog"
	"maps"
	"net/url"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-resource/cache"
)

// Resource runs list, retrieve, create, update and destroy against one
// Definition. It is safe for concurrent use.
type Resource[T any] struct {
	def     Definition[T]
	cache   *resourceCache
	logger  *slog.Logger
	metrics *Metrics
}

type options struct {
	cache   cache.CacheService
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Resource.
type Option func(*options)

// WithCache sets the cache backend. Backend failures are logged and
// treated as misses.
func WithCache(svc cache.CacheService) Option {
	return func(o *options) { o.cache = svc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New validates def, applies its defaults and returns a ready Resource.
func New[T any](def Definition[T], opts ...Option) (*Resource[T], error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	def = def.withDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger.With("resource", def.Name)

	rc := &resourceCache{
		keys:     cache.NewDefaultKeySerializer(),
		prefix:   def.CacheKeyPrefix,
		ttl:      def.CacheTTL,
		resource: def.Name,
		metrics:  o.metrics,
	}
	if o.cache != nil {
		rc.svc = cache.Tolerant(o.cache, logger)
	}

	return &Resource[T]{
		def:     def,
		cache:   rc,
		logger:  logger,
		metrics: o.metrics,
	}, nil
}

// Name returns the resource name.
func (r *Resource[T]) Name() string { return r.def.Name }

// Definition returns the effective definition, defaults included.
func (r *Resource[T]) Definition() Definition[T] { return r.def }

func (r *Resource[T]) baseQuery(ctx context.Context) Query {
	return Query{
		SoftDeleteField: r.def.SoftDeleteField,
		WithDeleted:     IncludesDeleted(ctx),
	}
}

func (r *Resource[T]) allow(op Operation) error {
	if !r.def.Operations.Allows(op) {
		return NewMethodNotAllowed(r.def.Name, op)
	}
	return nil
}

// List parses params, then serves the matching page from cache or from the
// collection.
func (r *Resource[T]) List(ctx context.Context, params url.Values) (res ListResult, err error) {
	defer r.track(OpList, time.Now(), &err)

	if err = r.allow(OpList); err != nil {
		return ListResult{}, err
	}

	spec, err := ParseFilters(params, r.def.FilterFields)
	if err != nil {
		return ListResult{}, err
	}

	q := r.baseQuery(ctx)
	q.Include = spec.Include
	q.Exclude = spec.Exclude
	q.OrderBy = spec.OrderBy

	key := r.cache.listKey(spec, r.def.PageSize, q.WithDeleted)
	return r.cache.list(ctx, key, func(ctx context.Context) (ListResult, error) {
		return r.page(ctx, q, spec.Window)
	})
}

func (r *Resource[T]) page(ctx context.Context, q Query, w Window) (ListResult, error) {
	page, err := Paginate(ctx, r.def.Collection, q, w, r.def.PageSize)
	if err != nil {
		return ListResult{}, internalError(err, "list "+r.def.Name)
	}

	res := ListResult{
		Objects:     make([]Payload, 0, len(page.Records)),
		TotalCount:  page.TotalCount,
		NumPages:    page.NumPages,
		CurrentPage: page.CurrentPage,
	}
	for _, rec := range page.Records {
		p, err := r.def.Codec.Encode(rec)
		if err != nil {
			return ListResult{}, internalError(err, "encode "+r.def.Name)
		}
		res.Objects = append(res.Objects, p)
	}
	return res, nil
}

// Retrieve returns one record by id. Object cache entries are only written
// under the collection's canonical id, so another spelling of the same id
// misses and falls through to the collection.
func (r *Resource[T]) Retrieve(ctx context.Context, id string) (p Payload, err error) {
	defer r.track(OpRetrieve, time.Now(), &err)

	if err = r.allow(OpRetrieve); err != nil {
		return nil, err
	}

	q := r.baseQuery(ctx)
	useCache := !q.WithDeleted
	if useCache {
		if cached, hit := r.cache.getObject(ctx, id); hit {
			return cached, nil
		}
	}

	rec, err := r.lookup(ctx, id, q)
	if err != nil {
		return nil, err
	}

	p, err = r.def.Codec.Encode(rec)
	if err != nil {
		return nil, internalError(err, "encode "+r.def.Name)
	}

	if useCache {
		r.cache.putObject(ctx, r.def.Collection.ID(rec), p)
	}
	return p, nil
}

// Create decodes payload and persists it. PreCreate, decoding and the write
// share one transaction.
func (r *Resource[T]) Create(ctx context.Context, payload Payload) (p Payload, err error) {
	defer r.track(OpCreate, time.Now(), &err)

	if err = r.allow(OpCreate); err != nil {
		return nil, err
	}

	// hooks may fill defaults without touching the caller's map
	payload = maps.Clone(payload)
	if payload == nil {
		payload = Payload{}
	}

	var saved T
	err = r.def.Collection.RunInTx(ctx, func(ctx context.Context) error {
		if hook := r.def.Hooks.PreCreate; hook != nil {
			if err := hook(ctx, payload); err != nil {
				return err
			}
		}

		rec, err := r.def.Codec.Decode(payload)
		if err != nil {
			return asValidation(err)
		}

		saved, err = r.def.Collection.Create(ctx, rec)
		return err
	})
	if err != nil {
		return nil, internalError(err, "create "+r.def.Name)
	}

	p, err = r.def.Codec.Encode(saved)
	if err != nil {
		return nil, internalError(err, "encode "+r.def.Name)
	}

	r.cache.putObject(ctx, r.def.Collection.ID(saved), p)
	r.cache.invalidateLists(ctx)

	r.runPost(ctx, OpCreate, r.def.Hooks.PostCreate, saved)
	return p, nil
}

// Update applies a partial payload to the record with the given id.
// Fields outside UpdateFields are rejected before anything is written.
func (r *Resource[T]) Update(ctx context.Context, id string, payload Payload) (p Payload, err error) {
	defer r.track(OpUpdate, time.Now(), &err)

	if err = r.allow(OpUpdate); err != nil {
		return nil, err
	}

	current, err := r.lookup(ctx, id, r.baseQuery(ctx))
	if err != nil {
		return nil, err
	}

	if outside := r.def.UpdateFields.Outside(payload); len(outside) > 0 {
		return nil, NewFieldNotAllowed(outside...)
	}

	var saved T
	err = r.def.Collection.RunInTx(ctx, func(ctx context.Context) error {
		if hook := r.def.Hooks.PreUpdate; hook != nil {
			if err := hook(ctx, payload, current); err != nil {
				return err
			}
		}

		next, err := r.def.Codec.Apply(current, payload)
		if err != nil {
			return asValidation(err)
		}

		saved, err = r.def.Collection.Update(ctx, next)
		return err
	})
	if err != nil {
		return nil, internalError(err, "update "+r.def.Name)
	}

	p, err = r.def.Codec.Encode(saved)
	if err != nil {
		return nil, internalError(err, "encode "+r.def.Name)
	}

	r.cache.putObject(ctx, r.def.Collection.ID(saved), p)
	r.cache.invalidateLists(ctx)

	r.runPost(ctx, OpUpdate, r.def.Hooks.PostUpdate, saved)
	return p, nil
}

// Destroy removes the record with the given id, or flags it when the
// resource declares a SoftDeleteField. Cache entries are dropped before the
// write so a concurrent read cannot resurrect the record.
func (r *Resource[T]) Destroy(ctx context.Context, id string) (err error) {
	defer r.track(OpDestroy, time.Now(), &err)

	if err = r.allow(OpDestroy); err != nil {
		return err
	}

	current, err := r.lookup(ctx, id, r.baseQuery(ctx))
	if err != nil {
		return err
	}

	r.cache.deleteObject(ctx, r.def.Collection.ID(current))
	r.cache.invalidateLists(ctx)

	err = r.def.Collection.RunInTx(ctx, func(ctx context.Context) error {
		if hook := r.def.Hooks.PreDestroy; hook != nil {
			if err := hook(ctx, current); err != nil {
				return err
			}
		}

		if field := r.def.SoftDeleteField; field != "" {
			flagged, err := r.def.Collection.SetFlag(ctx, current, field, true)
			if err != nil {
				return err
			}
			current = flagged
			return nil
		}
		return r.def.Collection.Delete(ctx, current)
	})
	if err != nil {
		return internalError(err, "destroy "+r.def.Name)
	}

	r.runPost(ctx, OpDestroy, r.def.Hooks.PostDestroy, current)
	return nil
}

func (r *Resource[T]) track(op Operation, started time.Time, err *error) {
	r.metrics.observe(r.def.Name, op, started, *err)
}

func (r *Resource[T]) lookup(ctx context.Context, id string, q Query) (T, error) {
	rec, err := r.def.Collection.GetByID(ctx, id, q)
	if err != nil {
		var zero T
		if IsNotFound(err) {
			return zero, NewNotFound(r.def.Name, id)
		}
		return zero, internalError(err, "get "+r.def.Name)
	}
	return rec, nil
}

// runPost invokes a post commit hook. Its failure is logged only.
func (r *Resource[T]) runPost(ctx context.Context, op Operation, hook func(context.Context, T) error, rec T) {
	if hook == nil {
		return
	}
	if err := hook(ctx, rec); err != nil {
		wrapped := errors.Wrap(err, errors.CategoryOperation, "post "+string(op)+" hook failed").
			WithSeverity(errors.SeverityWarning).
			WithMetadata(map[string]any{"resource": r.def.Name, "operation": string(op)})
		errors.LogBySeverity(r.logger, wrapped)
	}
}

func asValidation(err error) error {
	if IsValidation(err) {
		return err
	}
	return NewValidationError(err)
}
