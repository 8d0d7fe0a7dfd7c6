// Package keypool manages a pool of rate-limited external API
// credentials under concurrent access.
//
// # Overview
//
// Every key belongs to a capability tier with request-per-minute,
// token-per-minute, and request-per-day quotas. Callers check a key
// out, make their external call with its secret, and settle the lease
// with exactly one report:
//
//   - ReportUsage after a success: usage lands in the quota windows
//     and the strike counter resets.
//   - ReportFailure after a failed call: an info failure returns the
//     key untouched; a real failure costs a strike and suspends the
//     key on an escalating cooldown schedule.
//   - ReportFatal after an unrecoverable credential error: the key is
//     retired for the rest of the process lifetime.
//
// Checkout never blocks. When no key of the tier is eligible it
// returns absence, which callers treat as a supply signal: size worker
// pools from TierKeyCount and back off when the pool runs dry.
//
// Strikes and cooldown expiries persist across restarts through the
// storage backend; quota windows and retirement flags are session
// state. Refresh reloads the registry, clearing retirements while
// keeping the usage windows of keys that survive the reload.
//
// # Usage
//
//	store, err := storage.NewSQLiteStore("keys.db")
//	if err != nil {
//	    return err
//	}
//	pool, err := keypool.New(keypool.Config{Store: store, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	estimate := tokens.Estimate(payload)
//	lease, ok := pool.Checkout(keypool.TierFlash, estimate)
//	if !ok {
//	    // No key available right now; back off and retry.
//	    return nil
//	}
//
//	resp, err := callProvider(ctx, lease.Secret, payload)
//	switch outcome.Classify(resp.StatusCode, resp.Body, err) {
//	case outcome.Success:
//	    err = pool.ReportUsage(lease, resp.TokensUsed)
//	case outcome.InfoFailure:
//	    err = pool.ReportFailure(lease, true)
//	case outcome.KeyFailure:
//	    err = pool.ReportFailure(lease, false)
//	case outcome.Fatal:
//	    err = pool.ReportFatal(lease)
//	}
//
// # Thread Safety
//
// All Pool methods are safe for concurrent use. One mutex serializes
// every state transition; storage writebacks and journal writes happen
// outside it, so a slow disk never stalls a checkout. Each lease is
// held by exactly one caller and settles exactly once; a second report
// on the same lease fails with ErrInvalidLease.
package keypool
