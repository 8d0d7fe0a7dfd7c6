package quota

import "time"

// Limits is the quota envelope applied to every key of a tier.
type Limits struct {
	// RequestsPerMinute caps calls started within one minute window.
	RequestsPerMinute int

	// TokensPerMinute caps tokens consumed within one minute window.
	// The admission check uses a pre-flight estimate; the recorded
	// value after the response is authoritative.
	TokensPerMinute int

	// RequestsPerDay caps calls within one UTC calendar day.
	RequestsPerDay int
}

// DenyReason identifies which limit refused admission.
type DenyReason string

const (
	// DenyNone means the key was admitted.
	DenyNone DenyReason = ""

	// DenyRequestsPerMinute means the minute request cap is reached.
	DenyRequestsPerMinute DenyReason = "requests_per_minute"

	// DenyTokensPerMinute means the estimated tokens do not fit the
	// remaining minute token budget.
	DenyTokensPerMinute DenyReason = "tokens_per_minute"

	// DenyRequestsPerDay means the daily request cap is reached.
	DenyRequestsPerDay DenyReason = "requests_per_day"
)

// Window holds one key's in-memory usage counters. The zero value is
// ready to use: the first Roll opens the minute window and pins the
// current UTC day.
type Window struct {
	// MinuteStart is when the current minute window opened. Counters
	// reset once a full minute has elapsed since this instant.
	MinuteStart time.Time

	// RequestsThisMinute counts calls recorded in the minute window.
	RequestsThisMinute int

	// TokensThisMinute sums tokens recorded in the minute window.
	TokensThisMinute int

	// Day is the UTC midnight of the day RequestsToday refers to.
	Day time.Time

	// RequestsToday counts calls recorded during Day.
	RequestsToday int
}

// Roll expires the minute window if sixty seconds have passed since it
// opened, and clears the day counter when the UTC day has changed.
// Admit and Record roll implicitly; callers reading counters directly
// should Roll first so expired usage is not mistaken for load.
func (w *Window) Roll(now time.Time) {
	if w.MinuteStart.IsZero() || now.Sub(w.MinuteStart) >= time.Minute {
		w.MinuteStart = now
		w.RequestsThisMinute = 0
		w.TokensThisMinute = 0
	}
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(w.Day) {
		w.Day = day
		w.RequestsToday = 0
	}
}

// Admit reports whether a call with the given pre-flight token
// estimate fits within lim right now. It rolls the windows first and
// returns the limit that refused when admission is denied. Admit does
// not reserve capacity; the caller records actual usage afterwards.
func (w *Window) Admit(now time.Time, lim Limits, estimatedTokens int) (bool, DenyReason) {
	w.Roll(now)

	if w.RequestsThisMinute >= lim.RequestsPerMinute {
		return false, DenyRequestsPerMinute
	}
	if w.TokensThisMinute+estimatedTokens > lim.TokensPerMinute {
		return false, DenyTokensPerMinute
	}
	if w.RequestsToday >= lim.RequestsPerDay {
		return false, DenyRequestsPerDay
	}
	return true, DenyNone
}

// Record counts a completed call: one request in the minute and day
// windows plus the tokens the response reported as consumed.
func (w *Window) Record(now time.Time, tokensConsumed int) {
	w.Roll(now)
	w.RequestsThisMinute++
	w.TokensThisMinute += tokensConsumed
	w.RequestsToday++
}

// Capacity is the headroom left under a set of limits.
type Capacity struct {
	// Requests is how many more calls fit in the current minute.
	Requests int

	// Tokens is the token budget left in the current minute.
	Tokens int

	// Daily is how many more calls fit in the current UTC day.
	Daily int
}

// Remaining reports the capacity left under lim right now. It rolls
// the windows first; values are clamped at zero when recorded usage
// exceeds a limit that was lowered after the fact.
func (w *Window) Remaining(now time.Time, lim Limits) Capacity {
	w.Roll(now)
	return Capacity{
		Requests: max(0, lim.RequestsPerMinute-w.RequestsThisMinute),
		Tokens:   max(0, lim.TokensPerMinute-w.TokensThisMinute),
		Daily:    max(0, lim.RequestsPerDay-w.RequestsToday),
	}
}
