// Package logging provides structured logging with credential redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Automatic credential redaction (API keys, bearer tokens)
//   - Context-aware logging with request and worker metadata
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	// Create a logger
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//
//	// Log structured data
//	logger.Info("key checked out",
//	    "key_id", "key-gcp-01",
//	    "key_suffix", logging.KeySuffix(secret),
//	    "tier", "flash",
//	)
//
//	// Create context-aware logger
//	ctx := logging.WithWorker(ctx, "worker-3")
//	ctxLogger := logger.WithContext(ctx)
//	ctxLogger.Info("request admitted")  // Includes worker automatically
//
// # Credential Redaction
//
// Credential values must never reach log output in full. When
// RedactSecrets is enabled, values logged under sensitive keys
// (secret, api_key, token, password) are masked to their last four
// characters, and credential-shaped strings inside messages are
// blanked:
//
//   - Google API keys: AIzaSyD...xyz9 → AIza***
//   - OpenAI-style keys: sk-abc123xyz → sk-***
//   - Bearer tokens: Bearer eyJhbGci... → Bearer ***
//
// The KeySuffix helper produces the approved display form for a
// credential: its last four characters.
//
// # Thread Safety
//
// Logger is safe for concurrent use. All methods may be called from
// multiple goroutines simultaneously.
package logging
