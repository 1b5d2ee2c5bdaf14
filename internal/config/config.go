// Package config loads the mediakg configuration with viper.
package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/aleksaelezovic/mediakg/internal/cache"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
)

// Config is the top-level configuration
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Primary PrimaryConfig `mapstructure:"primary"`
	Search  SearchConfig  `mapstructure:"search"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig holds settings shared by every backend
type StoreConfig struct {
	// LocalBase is the store's own base address. Bracketed URIs below it
	// are kept as local URIs.
	LocalBase string `mapstructure:"local_base"`
	CacheSize int64  `mapstructure:"cache_size"`
}

// PrimaryConfig selects the system of record
type PrimaryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// SearchConfig selects the store that answers similarity and text queries
type SearchConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix MEDIAKG_).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.local_base", "")
	v.SetDefault("store.cache_size", cache.DefaultSize)
	v.SetDefault("primary.backend", BackendBadger)
	v.SetDefault("primary.path", "data/badger")
	v.SetDefault("search.backend", BackendSQLite)
	v.SetDefault("search.path", "data/search.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("MEDIAKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, kgerr.Wrap(err, kgerr.CodeConfigLoadReadFailure, "reading config", kgerr.FieldPath(path))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It collects every
// issue instead of stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Store.CacheSize < 1 {
		errs = append(errs, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: store.cache_size must be positive, got %d", c.Store.CacheSize))
	}

	switch c.Primary.Backend {
	case BackendBadger, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: primary.backend must be one of [badger, sqlite, memory], got %q", c.Primary.Backend))
	}

	switch c.Search.Backend {
	case BackendSQLite, BackendMemory, BackendNone:
	default:
		errs = append(errs, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: search.backend must be one of [sqlite, memory, none], got %q", c.Search.Backend))
	}
	if c.Primary.Backend == BackendSQLite && c.Search.Backend == BackendSQLite &&
		c.Primary.Path != "" && c.Primary.Path == c.Search.Path {
		errs = append(errs, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: primary.path and search.path must differ, both are %q", c.Primary.Path))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

// SlogLevel parses the configured level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, kgerr.Errorf(kgerr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	return level, nil
}
