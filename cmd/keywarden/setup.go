package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/audit"
	"workbench-hq/keywarden/pkg/cli"
	"workbench-hq/keywarden/pkg/config"
	"workbench-hq/keywarden/pkg/keypool"
	"workbench-hq/keywarden/pkg/keypool/cooldown"
	"workbench-hq/keywarden/pkg/keypool/storage"
	"workbench-hq/keywarden/pkg/telemetry/logging"
)

// keyStore is the store surface the admin commands need: the pool's
// Backend plus row administration. Both the SQLite and memory stores
// satisfy it.
type keyStore interface {
	storage.Backend
	InsertKey(ctx context.Context, row storage.KeyRow) error
	RemoveKey(ctx context.Context, id string) error
	ResetPenalty(ctx context.Context, id string) error
}

// loadConfig reads the configuration file and applies CLI overrides.
// A missing file is an error only when --config was set explicitly;
// otherwise defaults apply, so read-only commands work out of the box.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
			cfg = config.DefaultConfig()
		} else {
			return nil, cli.NewConfigError("", err.Error())
		}
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section.
// Redaction is always on.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		AddSource:     cfg.Logging.AddSource,
		RedactSecrets: true,
	})
}

// buildTiers converts the configured tier table to pool limits.
func buildTiers(cfg *config.Config) (map[keypool.Tier]keypool.TierLimits, error) {
	tiers := make(map[keypool.Tier]keypool.TierLimits, len(cfg.Pool.Tiers))
	for name, tl := range cfg.Pool.Tiers {
		tier, err := keypool.ParseTier(name)
		if err != nil {
			return nil, err
		}
		tiers[tier] = keypool.TierLimits{
			RequestsPerMinute: tl.RequestsPerMinute,
			TokensPerMinute:   tl.TokensPerMinute,
			RequestsPerDay:    tl.RequestsPerDay,
		}
	}
	return tiers, nil
}

// buildEscalation converts the configured escalation ladder.
func buildEscalation(cfg *config.Config) cooldown.Schedule {
	return cooldown.Schedule{
		Steps:      cfg.Pool.Escalation.Steps,
		MaxStrikes: cfg.Pool.Escalation.MaxStrikes,
		HardBlock:  cfg.Pool.Escalation.HardBlock,
	}
}

// openKeyStore opens the configured key store backend.
func openKeyStore(cfg *config.Config) (keyStore, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStoreWithConfig(storage.SQLiteStoreConfig{
			Path:        cfg.Storage.SQLite.Path,
			BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open key store: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// openAuditStore opens the configured journal store.
func openAuditStore(cfg *config.Config) (audit.Store, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		return store, nil
	case "memory":
		return audit.NewMemoryStore(0), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
	}
}

// buildPool assembles a pool over the given store using the configured
// tiers and escalation schedule.
func buildPool(cfg *config.Config, store storage.Backend, logger *logging.Logger, recorder *audit.Recorder) (*keypool.Pool, error) {
	tiers, err := buildTiers(cfg)
	if err != nil {
		return nil, err
	}

	var metrics *keypool.Metrics
	if cfg.Metrics.Enabled {
		metrics = keypool.NewMetrics()
	}

	return keypool.New(keypool.Config{
		Tiers:      tiers,
		Escalation: buildEscalation(cfg),
		Store:      store,
		Logger:     logger,
		Recorder:   recorder,
		Metrics:    metrics,
	})
}
