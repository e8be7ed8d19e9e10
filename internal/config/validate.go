package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "rules.dir").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// collecting every failure, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateLog(&cfg.Log)...)
	errs = append(errs, validateEntities(cfg.Entities)...)
	errs = append(errs, validateSchedules(cfg.Schedules, cfg.Entities)...)

	if cfg.Store.Path == "" {
		errs = append(errs, FieldError{Field: "store.path", Message: "must not be empty"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError
	if cfg.Dir == "" {
		errs = append(errs, FieldError{Field: "rules.dir", Message: "must not be empty"})
	}
	if cfg.Debounce <= 0 {
		errs = append(errs, FieldError{Field: "rules.debounce", Message: "must be positive"})
	}
	return errs
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError
	if cfg.FrameInterval <= 0 {
		errs = append(errs, FieldError{Field: "engine.frame_interval", Message: "must be positive"})
	}
	if cfg.Registers < 0 {
		errs = append(errs, FieldError{Field: "engine.registers", Message: "must not be negative"})
	}
	if cfg.PlainScopes < 0 {
		errs = append(errs, FieldError{Field: "engine.plain_scopes", Message: "must not be negative"})
	}
	if cfg.RegisterScopes < 0 {
		errs = append(errs, FieldError{Field: "engine.register_scopes", Message: "must not be negative"})
	}
	if cfg.MaxDepth <= 0 {
		errs = append(errs, FieldError{Field: "engine.max_depth", Message: "must be positive"})
	}
	return errs
}

func validateMetrics(cfg *MetricsConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "metrics.listen_address", Message: "must not be empty when metrics are enabled"})
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, FieldError{Field: "metrics.path", Message: "must start with /"})
	}
	return errs
}

func validateLog(cfg *LogConfig) []FieldError {
	var errs []FieldError
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", cfg.Level)})
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		errs = append(errs, FieldError{Field: "log.format", Message: fmt.Sprintf("unknown format %q, must be text or json", cfg.Format)})
	}
	return errs
}

func validateEntities(entities []EntityConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(entities))
	for i, e := range entities {
		field := fmt.Sprintf("entities[%d]", i)
		if e.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "must not be empty"})
			continue
		}
		if seen[e.Key] {
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("duplicate key %q", e.Key)})
		}
		seen[e.Key] = true
		if e.Health < 0 {
			errs = append(errs, FieldError{Field: field + ".health", Message: "must not be negative"})
		}
	}
	return errs
}

func validateSchedules(schedules []ScheduleConfig, entities []EntityConfig) []FieldError {
	keys := make(map[string]bool, len(entities))
	for _, e := range entities {
		keys[e.Key] = true
	}

	var errs []FieldError
	names := make(map[string]bool, len(schedules))
	for i, s := range schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if s.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "must not be empty"})
		} else if names[s.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate schedule %q", s.Name)})
		}
		names[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, FieldError{Field: field + ".cron", Message: fmt.Sprintf("invalid cron expression %q: %v", s.Cron, err)})
		}
		if s.Trigger == "" {
			errs = append(errs, FieldError{Field: field + ".trigger", Message: "must not be empty"})
		}
		if s.Entity != "" && !keys[s.Entity] {
			errs = append(errs, FieldError{Field: field + ".entity", Message: fmt.Sprintf("unknown entity %q", s.Entity)})
		}
		if _, err := ir.ParseValue(s.Arg); err != nil {
			errs = append(errs, FieldError{Field: field + ".arg", Message: err.Error()})
		}
	}
	return errs
}
