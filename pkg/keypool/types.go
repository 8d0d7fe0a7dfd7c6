package keypool

import (
	"fmt"
	"time"

	"workbench-hq/keywarden/pkg/keypool/quota"
)

// Tier identifies a capability tier. The set is closed: every key row
// and every TierLimits entry must name one of the constants below.
type Tier string

const (
	// TierPro is the high-capability, low-throughput tier.
	TierPro Tier = "pro"

	// TierFlash is the balanced default tier.
	TierFlash Tier = "flash"

	// TierFlashLiteFree is the free tier with a small daily quota.
	TierFlashLiteFree Tier = "flash-lite-free"
)

// AllTiers returns the closed tier set in capability order.
func AllTiers() []Tier {
	return []Tier{TierPro, TierFlash, TierFlashLiteFree}
}

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierPro, TierFlash, TierFlashLiteFree:
		return true
	}
	return false
}

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}

// ParseTier converts a tier name to a Tier, rejecting unknown names.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// TierLimits is the quota envelope shared by every key of a tier.
type TierLimits = quota.Limits

// DefaultTierLimits returns the standard limits for the closed tier
// set. Values mirror the provider's published free-tier quotas.
func DefaultTierLimits() map[Tier]TierLimits {
	return map[Tier]TierLimits{
		TierPro:           {RequestsPerMinute: 5, TokensPerMinute: 250000, RequestsPerDay: 100},
		TierFlash:         {RequestsPerMinute: 10, TokensPerMinute: 250000, RequestsPerDay: 250},
		TierFlashLiteFree: {RequestsPerMinute: 10, TokensPerMinute: 250000, RequestsPerDay: 20},
	}
}

// State is a key's position in the pool lifecycle.
type State string

const (
	// StateAvailable means the key can be checked out now.
	StateAvailable State = "available"

	// StateCheckedOut means exactly one caller holds the key.
	StateCheckedOut State = "checked_out"

	// StateCooling means the key is suspended until its cooldown
	// expires.
	StateCooling State = "cooling"

	// StateRetired means the key is out of rotation until the next
	// registry refresh.
	StateRetired State = "retired"
)

// Lease is a caller's exclusive hold on a key between Checkout and the
// matching report. The embedded token makes each hold single-use: once
// a report settles the lease, further reports against it fail with
// ErrInvalidLease.
type Lease struct {
	// KeyID is the checked-out key's identifier.
	KeyID string

	// Tier is the key's tier.
	Tier Tier

	// Secret is the credential to use for the external call. It must
	// never be logged in full.
	Secret string

	token string
}

// String renders the lease without exposing the secret.
func (l *Lease) String() string {
	return fmt.Sprintf("lease(key=%s tier=%s)", l.KeyID, l.Tier)
}

// KeyStatus is a point-in-time view of one key for inspection and
// status output. The secret appears only as its last-4 suffix.
type KeyStatus struct {
	ID            string    `json:"id"`
	Tier          Tier      `json:"tier"`
	Priority      int       `json:"priority"`
	State         State     `json:"state"`
	Strikes       int       `json:"strikes"`
	CooldownUntil time.Time `json:"cooldown_until"`
	RequestsToday int       `json:"requests_today"`
	Retired       bool      `json:"retired"`
	SecretSuffix  string    `json:"secret_suffix"`
}
