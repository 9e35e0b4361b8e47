package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Option configures a Store.
type Option func(*Store)

// WithReloadDirty controls whether payloads may merge into dirty records.
// When false, a push that touches a dirty record fails with DIRTY_RELOAD
// before anything is applied, and ReloadRecord refuses dirty records.
//
// Default: true
func WithReloadDirty(v bool) Option {
	return func(s *Store) { s.reloadDirty = v }
}

// WithSideWithClientOnConflict controls relationship conflicts: when true
// a locally deleted edge stays deleted even if the server still reports it.
//
// Default: true
func WithSideWithClientOnConflict(v bool) Option {
	return func(s *Store) { s.sideWithClient = v }
}

// WithOverwriteClientAttributes controls attribute conflicts on reload:
// when true an incoming server value drops the client override.
//
// Default: false
func WithOverwriteClientAttributes(v bool) Option {
	return func(s *Store) { s.overwriteClientAttrs = v }
}

// WithCacheTimeout sets the identity map expiry for point lookups.
//
// Default: no expiry
func WithCacheTimeout(d time.Duration) Option {
	return func(s *Store) { s.cacheTimeout = d }
}

// WithIDGenerator sets the generator for relationship and temporary ids.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithLogger sets the logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics enables prometheus metrics.
//
// Default: disabled
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Config is the YAML form of the store options.
//
//	reload_dirty: true
//	side_with_client_on_conflict: true
//	overwrite_client_attributes: false
//	cache_timeout: 5m
type Config struct {
	ReloadDirty               *bool  `yaml:"reload_dirty"`
	SideWithClientOnConflict  *bool  `yaml:"side_with_client_on_conflict"`
	OverwriteClientAttributes *bool  `yaml:"overwrite_client_attributes"`
	CacheTimeout              string `yaml:"cache_timeout"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig parses YAML config. Unknown keys are rejected.
func DecodeConfig(r io.Reader) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.CacheTimeout != "" {
		if _, err := time.ParseDuration(cfg.CacheTimeout); err != nil {
			return Config{}, fmt.Errorf("cache_timeout: %w", err)
		}
	}
	return cfg, nil
}

// Options converts the config into store options. Unset keys keep the
// defaults.
func (c Config) Options() []Option {
	var opts []Option
	if c.ReloadDirty != nil {
		opts = append(opts, WithReloadDirty(*c.ReloadDirty))
	}
	if c.SideWithClientOnConflict != nil {
		opts = append(opts, WithSideWithClientOnConflict(*c.SideWithClientOnConflict))
	}
	if c.OverwriteClientAttributes != nil {
		opts = append(opts, WithOverwriteClientAttributes(*c.OverwriteClientAttributes))
	}
	if c.CacheTimeout != "" {
		// validated by DecodeConfig
		d, _ := time.ParseDuration(c.CacheTimeout)
		opts = append(opts, WithCacheTimeout(d))
	}
	return opts
}
