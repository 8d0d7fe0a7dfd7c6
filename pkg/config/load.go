package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified
// path. It applies default values, validates the configuration, and
// returns any errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention KEYWARDEN_SECTION_FIELD (e.g., KEYWARDEN_STORAGE_BACKEND)
// and always take precedence over file values.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed values are ignored; the file value stands.
func applyEnvOverrides(cfg *Config) {
	// Pool overrides
	if val := os.Getenv("KEYWARDEN_POOL_MAX_STRIKES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Pool.Escalation.MaxStrikes = i
		}
	}
	if val := os.Getenv("KEYWARDEN_POOL_HARD_BLOCK"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pool.Escalation.HardBlock = d
		}
	}

	// Storage overrides
	if val := os.Getenv("KEYWARDEN_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("KEYWARDEN_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}

	// Audit overrides
	if val := os.Getenv("KEYWARDEN_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("KEYWARDEN_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("KEYWARDEN_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}
	if val := os.Getenv("KEYWARDEN_AUDIT_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.BufferSize = i
		}
	}
	if val := os.Getenv("KEYWARDEN_AUDIT_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Audit.WriteTimeout = d
		}
	}

	// Refresh overrides
	if val := os.Getenv("KEYWARDEN_REFRESH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Refresh.Enabled = b
		}
	}
	if val := os.Getenv("KEYWARDEN_REFRESH_SCHEDULE"); val != "" {
		cfg.Refresh.Schedule = val
	}
	if val := os.Getenv("KEYWARDEN_REFRESH_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Refresh.Watch = b
		}
	}
	if val := os.Getenv("KEYWARDEN_REFRESH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Debounce = d
		}
	}
	if val := os.Getenv("KEYWARDEN_REFRESH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Timeout = d
		}
	}

	// Logging overrides
	if val := os.Getenv("KEYWARDEN_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("KEYWARDEN_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("KEYWARDEN_LOGGING_ADD_SOURCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Logging.AddSource = b
		}
	}

	// Metrics overrides
	if val := os.Getenv("KEYWARDEN_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}
