// Package telemetry provides observability for Keywarden.
//
// # Overview
//
// The telemetry tree holds the concerns that watch the pool rather
// than run it. Today that is one subpackage:
//
//   - logging: structured logging with credential redaction
//
// Pool throughput metrics (checkouts, misses, per-state key gauges)
// are registered by the keypool package itself, next to the state
// they observe; this tree carries only the cross-cutting pieces.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    return err
//	}
//	logger.Info("pool ready", "keys", pool.Snapshot())
//
// # Credential Safety
//
// Nothing in this tree may emit a full credential. The logging
// subpackage redacts known key shapes and masks sensitive fields to
// their last four characters; see its package documentation.
package telemetry
