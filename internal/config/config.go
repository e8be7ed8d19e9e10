// Package config loads the runtime configuration used by `rulescript serve`.
//
// Configuration is read from YAML, completed with defaults, overridden by
// RULESCRIPT_* environment variables and validated as a whole.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Rules locates the CUE rule tables and controls hot reload.
	Rules RulesConfig `yaml:"rules"`

	// Engine tunes the environment.
	Engine EngineConfig `yaml:"engine"`

	// Store configures the snapshot database.
	Store StoreConfig `yaml:"store"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configures the slog handler.
	Log LogConfig `yaml:"log"`

	// Entities are spawned into the world at startup.
	Entities []EntityConfig `yaml:"entities"`

	// Schedules enqueue triggers on cron schedules.
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// RulesConfig locates rule tables.
type RulesConfig struct {
	// Dir is the CUE package directory holding the tables.
	Dir string `yaml:"dir"`

	// Watch reloads tables when files in Dir change.
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period before a reload.
	Debounce time.Duration `yaml:"debounce"`
}

// EngineConfig tunes the environment.
type EngineConfig struct {
	FrameInterval  time.Duration `yaml:"frame_interval"`
	Registers      int           `yaml:"registers"`
	PlainScopes    int           `yaml:"plain_scopes"`
	RegisterScopes int           `yaml:"register_scopes"`
	MaxDepth       int           `yaml:"max_depth"`

	// ReentrancyGuard drops nested dispatch of a pair already on the stack.
	ReentrancyGuard bool `yaml:"reentrancy_guard"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Path string `yaml:"path"`

	// Restore names a snapshot applied at startup, if it exists.
	Restore string `yaml:"restore"`

	// Checkpoint names the snapshot saved at shutdown. Empty disables it.
	Checkpoint string `yaml:"checkpoint"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// EntityConfig describes an entity spawned at startup.
type EntityConfig struct {
	Key       string   `yaml:"key"`
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Prefab    string   `yaml:"prefab"`
	Groups    []string `yaml:"groups"`
	Health    int32    `yaml:"health"`
	Inventory []string `yaml:"inventory"`

	// Table names the rule table the entity owns.
	Table string `yaml:"table"`
}

// ScheduleConfig enqueues a trigger on a cron schedule.
type ScheduleConfig struct {
	Name string `yaml:"name"`

	// Cron is a standard five-field expression or a descriptor such as
	// "@every 10s".
	Cron string `yaml:"cron"`

	// Trigger is the trigger key.
	Trigger string `yaml:"trigger"`

	// Entity targets one entity. Empty broadcasts.
	Entity string `yaml:"entity"`

	// Arg is the trigger argument, a bare scalar or a tagged value.
	Arg any `yaml:"arg"`
}

// NewLogger builds the slog logger described by c. verbose forces the
// debug level.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
