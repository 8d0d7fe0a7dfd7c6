// Package quota tracks per-key usage against tier rate limits.
//
// Each pooled credential carries one Window holding three counters:
// requests this minute, tokens this minute, and requests today. The
// minute counters reset sixty seconds after the window opened; the day
// counter resets when the UTC calendar day changes. Windows live only
// in memory - a process restart forgets intra-minute and intra-day
// usage, which is acceptable because the provider enforces the real
// limits and this tracker only exists to stop us from tripping them.
//
// # Thread Safety
//
// Window has no internal locking. The pool coordinator owns all
// windows and mutates them under its own mutex; nothing else may
// touch them. Callers embedding Window elsewhere must provide their
// own synchronization.
package quota
