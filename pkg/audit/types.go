package audit

import (
	"context"
	"time"
)

// Kind classifies a pool event.
type Kind string

const (
	// KindCheckout records a successful key checkout.
	KindCheckout Kind = "checkout"

	// KindCheckoutMiss records a checkout that found no eligible key.
	KindCheckoutMiss Kind = "checkout_miss"

	// KindUsage records a successful call settled against a key.
	KindUsage Kind = "usage"

	// KindInfoFailure records a failure that carried no penalty.
	KindInfoFailure Kind = "info_failure"

	// KindFailure records a failure that cost the key a strike.
	KindFailure Kind = "failure"

	// KindFatal records a key being retired for the session.
	KindFatal Kind = "fatal"

	// KindRefresh records a registry reload.
	KindRefresh Kind = "refresh"
)

// Event is one entry in the pool's journal.
type Event struct {
	// ID uniquely identifies the event. The recorder assigns one when
	// the event is enqueued without it.
	ID string

	// Time is when the event happened.
	Time time.Time

	// Kind classifies the event.
	Kind Kind

	// KeyID names the key involved. Empty for pool-wide events such as
	// refreshes and misses with no candidate.
	KeyID string

	// Tier is the tier the event applies to.
	Tier string

	// Tokens carries the token count for usage events.
	Tokens int

	// Strikes carries the key's strike count after the event.
	Strikes int

	// Detail holds a short free-form annotation: a miss reason, a
	// suspension duration, refresh counts.
	Detail string
}

// Store persists journal events.
type Store interface {
	// Append writes one event.
	Append(ctx context.Context, e Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Event, error)

	// Close releases resources held by the store.
	Close() error
}

// Filter narrows a journal query. Zero fields match everything.
type Filter struct {
	// KeyID restricts results to one key.
	KeyID string

	// Kind restricts results to one event kind.
	Kind Kind

	// Since excludes events before this instant.
	Since time.Time

	// Until excludes events after this instant.
	Until time.Time

	// Limit caps the result count. Zero means the default of 100.
	Limit int
}

// DefaultQueryLimit is applied when a filter does not set Limit.
const DefaultQueryLimit = 100
