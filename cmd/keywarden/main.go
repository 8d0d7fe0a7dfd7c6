// Keywarden is an admission-control layer for pools of third-party
// API keys.
//
// It manages a registry of credentials grouped into capability tiers,
// enforcing per-key request and token quotas, escalating cooldowns for
// failing keys, and session-scoped retirement for keys the upstream
// provider has rejected outright.
//
// Usage:
//
//	# List keys in the configured store
//	keywarden keys list
//
//	# Add a key to the pro tier
//	keywarden keys add --id prod-1 --secret "$API_KEY" --tier pro
//
//	# Clear a key's strikes and cooldown
//	keywarden keys reset prod-1
//
//	# Show tier limits and usable key counts
//	keywarden tiers
//
//	# Validate a configuration file
//	keywarden validate --config config.yaml
//
//	# Run a synthetic load simulation against the pool
//	keywarden simulate --tier flash --requests 500
//
//	# Query the pool event journal
//	keywarden audit list --kind failure --since 1h
//
// For complete documentation, see: https://github.com/workbench-hq/keywarden
package main

func main() {
	Execute()
}
