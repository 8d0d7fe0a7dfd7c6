package keypool

import (
	"errors"
	"fmt"
)

// Pool errors.
var (
	// ErrInvalidLease is returned when a report references a lease that
	// was never issued or has already been settled. A second report on
	// the same lease is a caller bug, surfaced loudly rather than
	// corrupting pool counts.
	ErrInvalidLease = errors.New("invalid or already settled lease")

	// ErrUnknownTier is returned when a tier name is outside the closed
	// tier set.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrNilStore is returned when the pool is constructed without a
	// storage backend.
	ErrNilStore = errors.New("storage backend is required")

	// ErrInvalidLimits is returned when a tier's limits are not all
	// positive.
	ErrInvalidLimits = errors.New("tier limits must be positive")

	// ErrPoolClosed is returned from Refresh after Close.
	ErrPoolClosed = errors.New("pool is closed")
)

// LeaseError reports which operation rejected a lease and why.
type LeaseError struct {
	// Op is the operation that failed: report_usage, report_failure, or
	// report_fatal.
	Op string

	// KeyID is the key the lease claims to hold, when known.
	KeyID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LeaseError) Error() string {
	if e.KeyID != "" {
		return fmt.Sprintf("%s: key %s: %v", e.Op, e.KeyID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is matching.
func (e *LeaseError) Unwrap() error {
	return e.Err
}
