package config

import "time"

// Default values for configuration fields.
const (
	DefaultRulesDir      = "rules"
	DefaultRulesDebounce = 100 * time.Millisecond

	DefaultFrameInterval  = 50 * time.Millisecond
	DefaultRegisters      = 16
	DefaultPlainScopes    = 32
	DefaultRegisterScopes = 8
	DefaultMaxDepth       = 32

	DefaultStorePath = "data/rulescript.db"

	DefaultMetricsAddress = "127.0.0.1:9090"
	DefaultMetricsPath    = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ApplyDefaults fills every zero-valued field that has a default.
// Booleans keep their zero value.
func ApplyDefaults(cfg *Config) {
	if cfg.Rules.Dir == "" {
		cfg.Rules.Dir = DefaultRulesDir
	}
	if cfg.Rules.Debounce == 0 {
		cfg.Rules.Debounce = DefaultRulesDebounce
	}

	if cfg.Engine.FrameInterval == 0 {
		cfg.Engine.FrameInterval = DefaultFrameInterval
	}
	if cfg.Engine.Registers == 0 {
		cfg.Engine.Registers = DefaultRegisters
	}
	if cfg.Engine.PlainScopes == 0 {
		cfg.Engine.PlainScopes = DefaultPlainScopes
	}
	if cfg.Engine.RegisterScopes == 0 {
		cfg.Engine.RegisterScopes = DefaultRegisterScopes
	}
	if cfg.Engine.MaxDepth == 0 {
		cfg.Engine.MaxDepth = DefaultMaxDepth
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
