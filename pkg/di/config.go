package di

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/goliatone/go-resource/cache"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the application configuration. Every field can be set from a
// YAML file and overridden through the environment.
type Config struct {
	Cache     cache.Config   `yaml:"cache"`
	Database  DatabaseConfig `yaml:"database"`
	Log       LogConfig      `yaml:"log"`
	Resources ResourceConfig `yaml:"resources"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite3"`
	DSN    string `yaml:"dsn" env:"DATABASE_DSN" env-default:"file::memory:?cache=shared"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// ResourceConfig holds the defaults applied to resources built by the
// container.
type ResourceConfig struct {
	PageSize int           `yaml:"page_size" env:"RESOURCE_PAGE_SIZE" env-default:"20"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"RESOURCE_CACHE_TTL" env-default:"1h"`
}

// LoadConfig reads path when given, then applies environment overrides and
// defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryBadInput, "failed to load configuration").
			WithMetadata(map[string]any{"path": path})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values a container cannot start without.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid cache configuration")
	}
	if c.Database.Driver == "" {
		return errors.New("database driver is required", errors.CategoryValidation)
	}
	if c.Resources.PageSize < 0 {
		return errors.New("resources page_size must not be negative", errors.CategoryValidation)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", LogFormatText, LogFormatJSON:
	default:
		return errors.New(fmt.Sprintf("unknown log format %q", c.Log.Format), errors.CategoryValidation)
	}
	return nil
}

// NewLogger builds a slog logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrap(err, errors.CategoryValidation, fmt.Sprintf("unknown log level %q", s))
	}
	return level, nil
}
