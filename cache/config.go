package cache

import (
	"fmt"
	"time"

	"github.com/goliatone/go-resource/internal/cacheinfra"
)

// Supported cache backends.
const (
	BackendSturdyc = "sturdyc"
	BackendMemory  = "memory"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            string        `yaml:"backend" env:"CACHE_BACKEND" env-default:"sturdyc"`
	Capacity           int           `yaml:"capacity" env:"CACHE_CAPACITY" env-default:"10000"`
	NumShards          int           `yaml:"num_shards" env:"CACHE_NUM_SHARDS" env-default:"256"`
	TTL                time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"1h"`
	EvictionPercentage int           `yaml:"eviction_percentage" env:"CACHE_EVICTION_PERCENTAGE" env-default:"10"`
	EvictionInterval   time.Duration `yaml:"eviction_interval" env:"CACHE_EVICTION_INTERVAL"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Backend = BackendSturdyc
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendSturdyc:
		return c.toInternal().Validate()
	case BackendMemory:
		return nil
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
}

// NewCacheService constructs the backend selected by cfg.Backend.
func NewCacheService(cfg Config) (CacheService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendMemory {
		return cacheinfra.NewMemoryService(), nil
	}
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

// NewMemoryService returns an unbounded in-process backend.
func NewMemoryService() CacheService {
	return cacheinfra.NewMemoryService()
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
