package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific
// configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "pool.tiers.flash.requests_per_minute").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides
// access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
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
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a
// ValidationError if any rule fails. All errors are collected and
// returned together.
func (c *Config) Validate() error {
	var errs []FieldError

	errs = append(errs, validatePool(&c.Pool)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateAudit(&c.Audit)...)
	errs = append(errs, validateRefresh(&c.Refresh)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validatePool validates tier limits and the escalation schedule.
func validatePool(cfg *PoolConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Tiers) == 0 {
		errs = append(errs, FieldError{
			Field:   "pool.tiers",
			Message: "at least one tier is required",
		})
	}

	for name, limits := range cfg.Tiers {
		prefix := "pool.tiers." + name

		switch name {
		case TierNamePro, TierNameFlash, TierNameFlashLiteFree:
		default:
			errs = append(errs, FieldError{
				Field: prefix,
				Message: fmt.Sprintf("unknown tier %q (valid: %s, %s, %s)",
					name, TierNamePro, TierNameFlash, TierNameFlashLiteFree),
			})
			continue
		}

		if limits.RequestsPerMinute <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".requests_per_minute",
				Message: "must be positive",
			})
		}
		if limits.TokensPerMinute <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".tokens_per_minute",
				Message: "must be positive",
			})
		}
		if limits.RequestsPerDay <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".requests_per_day",
				Message: "must be positive",
			})
		}
	}

	if len(cfg.Escalation.Steps) == 0 {
		errs = append(errs, FieldError{
			Field:   "pool.escalation.steps",
			Message: "suspension ladder must not be empty",
		})
	}
	for i, step := range cfg.Escalation.Steps {
		if step <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("pool.escalation.steps[%d]", i),
				Message: "suspension must be positive",
			})
		}
	}
	if cfg.Escalation.MaxStrikes <= 0 {
		errs = append(errs, FieldError{
			Field:   "pool.escalation.max_strikes",
			Message: "must be positive",
		})
	}
	if cfg.Escalation.HardBlock <= 0 {
		errs = append(errs, FieldError{
			Field:   "pool.escalation.hard_block",
			Message: "must be positive",
		})
	}

	return errs
}

// validateStorage validates the key persistence section.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}

	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.sqlite.busy_timeout",
			Message: "must not be negative",
		})
	}

	return errs
}

// validateAudit validates the event journal section.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}

	if cfg.BufferSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "audit.buffer_size",
			Message: "must be positive",
		})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "audit.write_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

// validateRefresh validates the registry reload section. Cron
// expression syntax is checked by the scheduler at start, not here.
func validateRefresh(cfg *RefreshConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled && !cfg.Watch {
		return errs
	}

	if cfg.Enabled && cfg.Schedule == "" {
		errs = append(errs, FieldError{
			Field:   "refresh.schedule",
			Message: "schedule is required when refresh is enabled",
		})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "refresh.debounce",
			Message: "must not be negative",
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "refresh.timeout",
			Message: "must be positive",
		})
	}

	return errs
}

// validateLogging validates the logging section.
func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError

	switch cfg.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q (valid: debug, info, warn, error)", cfg.Level),
		})
	}

	switch cfg.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q (valid: json, text, console)", cfg.Format),
		})
	}

	return errs
}
