package keypool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the key pool. Construct one
// per process with NewMetrics and share it; promauto registers the
// collectors globally.
type Metrics struct {
	// Checkout outcomes
	checkouts *prometheus.CounterVec
	misses    *prometheus.CounterVec

	// Settled reports
	reports *prometheus.CounterVec

	// Key counts by state
	keys *prometheus.GaugeVec

	// Consumed token volume
	tokensConsumed *prometheus.CounterVec

	// Storage writebacks that failed
	persistFailures prometheus.Counter

	// Registry refreshes
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with Prometheus collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		checkouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_pool_checkouts_total",
				Help: "Total number of successful key checkouts",
			},
			[]string{"tier"},
		),

		misses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_pool_checkout_misses_total",
				Help: "Total number of checkouts that found no eligible key",
			},
			[]string{"tier", "reason"},
		),

		reports: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_pool_reports_total",
				Help: "Total number of settled lease reports",
			},
			[]string{"tier", "kind"},
		),

		keys: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keywarden_pool_keys",
				Help: "Current number of keys by tier and state",
			},
			[]string{"tier", "state"},
		),

		tokensConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_pool_tokens_consumed_total",
				Help: "Total tokens reported as consumed",
			},
			[]string{"tier"},
		),

		persistFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keywarden_pool_persist_failures_total",
				Help: "Total number of key state writebacks that failed",
			},
		),

		refreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_pool_refreshes_total",
				Help: "Total number of registry refreshes",
			},
			[]string{"result"},
		),

		refreshDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keywarden_pool_refresh_duration_seconds",
				Help:    "Duration of registry refreshes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
		),
	}
}

// RecordCheckout records a successful checkout.
func (m *Metrics) RecordCheckout(tier Tier) {
	m.checkouts.WithLabelValues(string(tier)).Inc()
}

// RecordMiss records a checkout that found no eligible key.
func (m *Metrics) RecordMiss(tier Tier, reason string) {
	m.misses.WithLabelValues(string(tier), reason).Inc()
}

// RecordReport records a settled lease report of the given kind.
func (m *Metrics) RecordReport(tier Tier, kind string) {
	m.reports.WithLabelValues(string(tier), kind).Inc()
}

// RecordTokens adds reported token consumption for a tier.
func (m *Metrics) RecordTokens(tier Tier, tokens int) {
	m.tokensConsumed.WithLabelValues(string(tier)).Add(float64(tokens))
}

// RecordPersistFailure counts a failed key state writeback.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Inc()
}

// RecordRefresh records a registry refresh and its duration.
func (m *Metrics) RecordRefresh(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
	if err == nil {
		m.refreshDuration.Observe(duration.Seconds())
	}
}

// UpdateKeyGauges replaces the per-tier key state gauges with the
// given counts.
func (m *Metrics) UpdateKeyGauges(counts map[Tier]map[State]int) {
	for tier, states := range counts {
		for _, state := range []State{StateAvailable, StateCheckedOut, StateCooling, StateRetired} {
			m.keys.WithLabelValues(string(tier), string(state)).Set(float64(states[state]))
		}
	}
}
