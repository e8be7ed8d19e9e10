package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RULESCRIPT_"

// Load reads configuration from a YAML file, applies defaults and
// validates it. Unknown fields are rejected. Environment variables are
// not consulted; use LoadWithEnvOverrides for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
// An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from path and applies
// environment variable overrides. An empty path starts from the defaults.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies RULESCRIPT_SECTION_FIELD variables. Malformed
// values are reported rather than ignored.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if val := getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		if val := getenv(EnvPrefix + name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if val := getenv(EnvPrefix + name); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = i
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val := getenv(EnvPrefix + name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("RULES_DIR", &cfg.Rules.Dir)
	boolean("RULES_WATCH", &cfg.Rules.Watch)
	duration("RULES_DEBOUNCE", &cfg.Rules.Debounce)

	duration("ENGINE_FRAME_INTERVAL", &cfg.Engine.FrameInterval)
	integer("ENGINE_REGISTERS", &cfg.Engine.Registers)
	integer("ENGINE_MAX_DEPTH", &cfg.Engine.MaxDepth)
	boolean("ENGINE_REENTRANCY_GUARD", &cfg.Engine.ReentrancyGuard)

	str("STORE_PATH", &cfg.Store.Path)
	str("STORE_RESTORE", &cfg.Store.Restore)
	str("STORE_CHECKPOINT", &cfg.Store.Checkpoint)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_LISTEN_ADDRESS", &cfg.Metrics.ListenAddress)
	str("METRICS_PATH", &cfg.Metrics.Path)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}
