package di

import (
	"io"
	"log/slog"
	"os"

	"github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-resource/cache"
	"github.com/goliatone/go-resource/resource"
	"github.com/goliatone/go-resource/store/bunstore"
)

// Container owns the shared dependencies of every resource: the cache
// backend, the database handle, the logger and the metrics registry.
type Container struct {
	config   Config
	logger   *slog.Logger
	cache    cache.CacheService
	registry *prometheus.Registry
	metrics  *resource.Metrics
	db       *bun.DB
}

type containerOptions struct {
	logOutput io.Writer
	db        *bun.DB
}

// Option customizes NewContainer.
type Option func(*containerOptions)

// WithLogOutput redirects log output. Defaults to os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *containerOptions) { o.logOutput = w }
}

// WithDB uses an already opened database instead of opening
// cfg.Database. The container still closes it.
func WithDB(db *bun.DB) Option {
	return func(o *containerOptions) { o.db = db }
}

// NewContainer validates cfg and builds every dependency it describes.
func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	o := containerOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Log, o.logOutput)
	if err != nil {
		return nil, err
	}

	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create cache service")
	}

	db := o.db
	if db == nil {
		db, err = bunstore.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryExternal, "failed to open database").
				WithMetadata(map[string]any{"driver": cfg.Database.Driver})
		}
	}

	registry := prometheus.NewRegistry()

	return &Container{
		config:   cfg,
		logger:   logger,
		cache:    cacheService,
		registry: registry,
		metrics:  resource.NewMetrics(registry),
		db:       db,
	}, nil
}

// NewContainerWithDefaults builds a container from environment variables
// and defaults only.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, opts...)
}

func (c *Container) Config() Config { return c.config }

func (c *Container) Logger() *slog.Logger { return c.logger }

// CacheService returns the shared cache backend.
func (c *Container) CacheService() cache.CacheService { return c.cache }

func (c *Container) DB() *bun.DB { return c.db }

// Registry is the prometheus registry resource metrics are recorded in.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

func (c *Container) Metrics() *resource.Metrics { return c.metrics }

// ResourceOptions returns the options that attach a resource to the
// container's cache, logger and metrics.
func (c *Container) ResourceOptions() []resource.Option {
	return []resource.Option{
		resource.WithCache(c.cache),
		resource.WithLogger(c.logger),
		resource.WithMetrics(c.metrics),
	}
}

// Close releases the database handle.
func (c *Container) Close() error {
	return c.db.Close()
}
