// Package config provides YAML configuration for keywarden.
//
// # Overview
//
// Configuration is organized into sections covering the key pool
// (tier quotas and escalation), key storage, the audit journal,
// registry refresh, logging, and metrics. Every field has a sensible
// default; an empty file yields a working configuration serving all
// three tiers from a SQLite key database.
//
// # Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("keywarden.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// A minimal file overriding just the free-tier daily cap and enabling
// scheduled refresh:
//
//	pool:
//	  tiers:
//	    flash-lite-free:
//	      requests_per_day: 50
//	refresh:
//	  enabled: true
//	  schedule: "@every 10m"
//
// Environment variables named KEYWARDEN_SECTION_FIELD (for example
// KEYWARDEN_STORAGE_SQLITE_PATH or KEYWARDEN_POOL_MAX_STRIKES)
// override file values.
//
// # Validation
//
// Validate collects every violation into a ValidationError with
// field-path messages, so a broken file reports all its problems in
// one pass rather than one per run.
package config
