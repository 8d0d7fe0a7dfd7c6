package config

import "time"

// Default values for configuration fields.
const (
	// Storage defaults
	DefaultStorageBackend    = "sqlite"
	DefaultStoragePath       = "data/keys.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Audit defaults
	DefaultAuditBackend      = "sqlite"
	DefaultAuditPath         = "data/audit.db"
	DefaultAuditBufferSize   = 1024
	DefaultAuditWriteTimeout = 5 * time.Second

	// Refresh defaults
	DefaultRefreshSchedule = "@every 5m"
	DefaultRefreshDebounce = 500 * time.Millisecond
	DefaultRefreshTimeout  = 30 * time.Second

	// Escalation defaults
	DefaultMaxStrikes = 5
	DefaultHardBlock  = 24 * time.Hour

	// Logging defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
)

// Tier names of the closed tier set.
const (
	TierNamePro           = "pro"
	TierNameFlash         = "flash"
	TierNameFlashLiteFree = "flash-lite-free"
)

// DefaultEscalationSteps returns the default suspension ladder.
func DefaultEscalationSteps() []time.Duration {
	return []time.Duration{
		10 * time.Second,
		60 * time.Second,
		5 * time.Minute,
		1 * time.Hour,
	}
}

// DefaultTiers returns the default limits for the closed tier set,
// mirroring the provider's published free-tier quotas.
func DefaultTiers() map[string]TierLimitsConfig {
	return map[string]TierLimitsConfig{
		TierNamePro:           {RequestsPerMinute: 5, TokensPerMinute: 250000, RequestsPerDay: 100},
		TierNameFlash:         {RequestsPerMinute: 10, TokensPerMinute: 250000, RequestsPerDay: 250},
		TierNameFlashLiteFree: {RequestsPerMinute: 10, TokensPerMinute: 250000, RequestsPerDay: 20},
	}
}

// DefaultConfig returns a fully populated configuration with default
// values. The result passes Validate.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. It is
// idempotent and safe to call multiple times.
func (c *Config) ApplyDefaults() {
	// Pool defaults
	if len(c.Pool.Tiers) == 0 {
		c.Pool.Tiers = DefaultTiers()
	} else {
		// Fill gaps in configured tiers from that tier's defaults, so
		// a tier entry can override just one limit.
		defaults := DefaultTiers()
		for name, limits := range c.Pool.Tiers {
			def, known := defaults[name]
			if !known {
				continue // unknown names are rejected by Validate
			}
			if limits.RequestsPerMinute == 0 {
				limits.RequestsPerMinute = def.RequestsPerMinute
			}
			if limits.TokensPerMinute == 0 {
				limits.TokensPerMinute = def.TokensPerMinute
			}
			if limits.RequestsPerDay == 0 {
				limits.RequestsPerDay = def.RequestsPerDay
			}
			c.Pool.Tiers[name] = limits
		}
	}
	if len(c.Pool.Escalation.Steps) == 0 {
		c.Pool.Escalation.Steps = DefaultEscalationSteps()
	}
	if c.Pool.Escalation.MaxStrikes == 0 {
		c.Pool.Escalation.MaxStrikes = DefaultMaxStrikes
	}
	if c.Pool.Escalation.HardBlock == 0 {
		c.Pool.Escalation.HardBlock = DefaultHardBlock
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultStoragePath
	}
	if c.Storage.SQLite.BusyTimeout == 0 {
		c.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Audit defaults. Enabled stays false unless set; the journal is
	// opt-in like refresh and metrics.
	if c.Audit.Backend == "" {
		c.Audit.Backend = DefaultAuditBackend
	}
	if c.Audit.SQLite.Path == "" {
		c.Audit.SQLite.Path = DefaultAuditPath
	}
	if c.Audit.SQLite.BusyTimeout == 0 {
		c.Audit.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultAuditBufferSize
	}
	if c.Audit.WriteTimeout == 0 {
		c.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}

	// Refresh defaults. Enabled stays false unless set.
	if c.Refresh.Schedule == "" {
		c.Refresh.Schedule = DefaultRefreshSchedule
	}
	if c.Refresh.Debounce == 0 {
		c.Refresh.Debounce = DefaultRefreshDebounce
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLoggingLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults are false (zero values), which is correct:
	// registration is global and must be opted into.
}
