// Package config handles teamsyncd configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded from default.toml)
//  2. Overlay the config file, TOML or YAML by extension, if it exists
//  3. CLI flags and environment variables override at runtime
//
// Decoders only set fields present in the file, so unspecified fields
// keep their defaults. A config file that exists but does not parse is
// an error rather than a silent fallback.
package config

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is where Load looks when given no path.
const DefaultConfigPath = "/etc/teamsync/teamsync.toml"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the top-level teamsyncd configuration.
type Config struct {
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
	Store       StoreConfig       `toml:"store" yaml:"store"`
	WarmRestart WarmRestartConfig `toml:"warm_restart" yaml:"warm_restart"`
	Teamd       TeamdConfig       `toml:"teamd" yaml:"teamd"`
	Sync        SyncConfig        `toml:"sync" yaml:"sync"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	// Level is a log spec such as "info" or "info,linksync=debug".
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// Components is an alternative to per-component entries in Level.
	Components map[string]string `toml:"components" yaml:"components"`
}

// ToSpec converts c to a log spec string. Level wins when set.
func (c *LoggingConfig) ToSpec() string {
	if c.Level != "" {
		return c.Level
	}
	if len(c.Components) == 0 {
		return ""
	}

	parts := []string{"info"}
	for _, component := range slices.Sorted(maps.Keys(c.Components)) {
		parts = append(parts, component+"="+c.Components[component])
	}
	return strings.Join(parts, ",")
}

// StoreConfig selects the state store backend.
type StoreConfig struct {
	Backend      string `toml:"backend" yaml:"backend"`
	Path         string `toml:"path" yaml:"path"`
	RedisAddress string `toml:"redis_address" yaml:"redis_address"`
	RedisDB      int    `toml:"redis_db" yaml:"redis_db"`
}

// WarmRestartConfig holds warm-restart fallbacks used when the store
// carries no configuration for teamsyncd.
type WarmRestartConfig struct {
	Enabled bool          `toml:"enabled" yaml:"enabled"`
	Timer   time.Duration `toml:"timer" yaml:"timer"`
}

// TeamdConfig describes how to reach the teamd control sockets.
type TeamdConfig struct {
	UnifiedMode   bool   `toml:"unified_mode" yaml:"unified_mode"`
	UnifiedSocket string `toml:"unified_socket" yaml:"unified_socket"`
	RunDir        string `toml:"run_dir" yaml:"run_dir"`
}

// SyncConfig sets the event loop cadence.
type SyncConfig struct {
	TickInterval time.Duration `toml:"tick_interval" yaml:"tick_interval"`
	DumpInterval time.Duration `toml:"dump_interval" yaml:"dump_interval"`
}

// DefaultConfig returns the configuration embedded in default.toml.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default.toml: %v", err))
	}
	return cfg
}

// Load reads path over the defaults. A missing file yields the
// defaults. Files ending in .yaml or .yml are decoded as YAML,
// anything else as TOML.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		_, err = toml.Decode(string(data), &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Sync.TickInterval <= 0 {
		return fmt.Errorf("sync.tick_interval must be positive, got %s", c.Sync.TickInterval)
	}
	if c.Sync.DumpInterval <= 0 {
		return fmt.Errorf("sync.dump_interval must be positive, got %s", c.Sync.DumpInterval)
	}
	if c.WarmRestart.Timer < 0 {
		return fmt.Errorf("warm_restart.timer must not be negative, got %s", c.WarmRestart.Timer)
	}
	if c.Teamd.UnifiedMode && c.Teamd.UnifiedSocket == "" {
		return fmt.Errorf("teamd.unified_socket is required in unified mode")
	}
	return nil
}
