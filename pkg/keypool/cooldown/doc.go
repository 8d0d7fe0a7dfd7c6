// Package cooldown defines the strike escalation policy for pooled
// credentials.
//
// Every non-informational failure attributed to a key increments its
// consecutive-strike counter, and the schedule maps that counter to a
// suspension duration. Strikes reset to zero on the next success. Once
// the counter reaches the configured maximum, the schedule stops
// escalating and applies a long hard block instead: the key is treated
// as dead for the rest of the day without being permanently retired,
// so it can recover if the underlying condition clears.
//
// The schedule is pure policy. Applying the suspension (setting a
// key's cooldown expiry, moving it out of rotation) is the pool
// coordinator's job.
package cooldown
