package config

import "time"

// Config is the root configuration structure for keywarden. It covers
// the key pool (tiers and escalation), key storage, the audit journal,
// registry refresh, logging, and metrics.
type Config struct {
	// Pool contains tier quota limits and the failure escalation
	// schedule.
	Pool PoolConfig `yaml:"pool"`

	// Storage selects and configures the key persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Audit configures the pool event journal.
	Audit AuditConfig `yaml:"audit"`

	// Refresh configures periodic and file-watch registry reloads.
	Refresh RefreshConfig `yaml:"refresh"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metric registration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// PoolConfig contains key pool configuration.
type PoolConfig struct {
	// Tiers maps tier names to their quota limits. Keys must belong to
	// the closed tier set: "pro", "flash", "flash-lite-free". Only the
	// tiers listed here are served; an empty map serves all three tiers
	// with their default limits.
	Tiers map[string]TierLimitsConfig `yaml:"tiers"`

	// Escalation is the consecutive-failure suspension schedule.
	Escalation EscalationConfig `yaml:"escalation"`
}

// TierLimitsConfig contains the quota limits for one tier.
type TierLimitsConfig struct {
	// RequestsPerMinute caps calls per key within a one-minute window.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute caps tokens per key within a one-minute window.
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// RequestsPerDay caps calls per key within a UTC calendar day.
	RequestsPerDay int `yaml:"requests_per_day"`
}

// EscalationConfig contains the strike escalation schedule.
type EscalationConfig struct {
	// Steps is the suspension ladder: Steps[0] applies after the first
	// strike, Steps[1] after the second, and so on.
	// Default: [10s, 60s, 5m, 1h]
	Steps []time.Duration `yaml:"steps"`

	// MaxStrikes is the consecutive-strike count at which the hard
	// block applies instead of the ladder.
	// Default: 5
	MaxStrikes int `yaml:"max_strikes"`

	// HardBlock is the suspension applied at and beyond MaxStrikes.
	// Default: 24h
	HardBlock time.Duration `yaml:"hard_block"`
}

// StorageConfig contains key persistence configuration.
type StorageConfig struct {
	// Backend selects the storage implementation.
	// Options: "sqlite" (durable), "memory" (process-local).
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend. Used when Backend is
	// "sqlite".
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains event journal configuration.
type AuditConfig struct {
	// Enabled controls whether pool transitions are journaled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the journal store.
	// Options: "sqlite" (durable), "memory" (capped ring).
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the journal database. This is a separate file
	// from the key database; the journal never shares a writer with
	// key state.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// BufferSize is the recorder's event channel capacity. Events
	// beyond it are dropped rather than blocking the pool.
	// Default: 1024
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds a single journal write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RefreshConfig contains registry reload configuration.
type RefreshConfig struct {
	// Enabled controls whether the refresh scheduler runs.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or "@every <duration>" interval
	// for periodic reloads.
	// Default: "@every 5m"
	Schedule string `yaml:"schedule"`

	// Watch additionally reloads when the key database file changes
	// on disk, so out-of-band key additions are picked up without
	// waiting for the next scheduled reload.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is how long the watcher waits after the last file
	// event before reloading. SQLite writes arrive in bursts.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`

	// Timeout bounds a single reload.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig contains structured logging configuration. Credential
// redaction is always on and has no configuration knob.
type LoggingConfig struct {
	// Level is the minimum level to emit.
	// Options: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the output encoding.
	// Options: "json", "text", "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes source file and line in each record.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether pool metrics are registered with the
	// default Prometheus registry. Registration is process-global, so
	// only one pool per process may enable it.
	// Default: false
	Enabled bool `yaml:"enabled"`
}
