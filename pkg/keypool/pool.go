package keypool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workbench-hq/keywarden/pkg/audit"
	"workbench-hq/keywarden/pkg/keypool/cooldown"
	"workbench-hq/keywarden/pkg/keypool/quota"
	"workbench-hq/keywarden/pkg/keypool/storage"
	"workbench-hq/keywarden/pkg/telemetry/logging"
)

// persistTimeout bounds a single key state writeback.
const persistTimeout = 5 * time.Second

// Miss reasons reported in metrics and the journal.
const (
	missNoKeys      = "no_keys"
	missQuota       = "quota_exhausted"
	missCooling     = "cooling"
	missCheckedOut  = "checked_out"
	missRetired     = "retired"
	missUnknownTier = "unknown_tier"
)

// keyState is one key's full in-memory record. Every field is guarded
// by the pool mutex.
type keyState struct {
	id       string
	secret   string
	tier     Tier
	priority int

	// Persisted penalty state, written back after each report.
	strikes       int
	cooldownUntil time.Time

	// Session state, never persisted.
	retired    bool
	checkedOut bool
	leaseToken string
	recentUses int
	window     quota.Window
}

// stateAt reports the key's lifecycle state. Retirement wins over
// every other condition.
func (ks *keyState) stateAt(now time.Time) State {
	switch {
	case ks.retired:
		return StateRetired
	case ks.checkedOut:
		return StateCheckedOut
	case ks.cooldownUntil.After(now):
		return StateCooling
	default:
		return StateAvailable
	}
}

// Config contains configuration for the Pool.
type Config struct {
	// Tiers maps each served tier to its quota limits. Nil uses
	// DefaultTierLimits. Key rows whose tier is absent from this map
	// are skipped at load time.
	Tiers map[Tier]TierLimits

	// Escalation maps consecutive strikes to suspension durations.
	// The zero value uses cooldown.Default().
	Escalation cooldown.Schedule

	// Store loads key rows and receives penalty writebacks. Required.
	Store storage.Backend

	// Logger receives pool diagnostics. Nil discards them.
	Logger *logging.Logger

	// Recorder journals pool events. Optional.
	Recorder *audit.Recorder

	// Metrics publishes pool telemetry. Optional.
	Metrics *Metrics
}

// Pool is the concurrency-safe front door to the key registry. All
// state mutation serializes through one mutex; no storage or journal
// I/O happens while it is held.
type Pool struct {
	mu     sync.Mutex
	keys   map[string]*keyState
	leases map[string]*keyState
	closed bool

	tiers      map[Tier]TierLimits
	escalation cooldown.Schedule
	store      storage.Backend
	logger     *logging.Logger
	recorder   *audit.Recorder
	metrics    *Metrics

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a pool and loads the key registry from the store.
func New(cfg Config) (*Pool, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}

	tiers := cfg.Tiers
	if tiers == nil {
		tiers = DefaultTierLimits()
	}
	for tier, limits := range tiers {
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
		if limits.RequestsPerMinute <= 0 || limits.TokensPerMinute <= 0 || limits.RequestsPerDay <= 0 {
			return nil, fmt.Errorf("%w: tier %s", ErrInvalidLimits, tier)
		}
	}

	escalation := cfg.Escalation
	if len(escalation.Steps) == 0 && escalation.MaxStrikes == 0 && escalation.HardBlock == 0 {
		escalation = cooldown.Default()
	}
	if err := escalation.Validate(); err != nil {
		return nil, fmt.Errorf("escalation schedule: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	p := &Pool{
		leases:     make(map[string]*keyState),
		tiers:      tiers,
		escalation: escalation,
		store:      cfg.Store,
		logger:     logger,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}

	rows, err := cfg.Store.LoadAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	p.keys = p.buildKeys(rows)

	p.logger.Info("key pool initialized",
		"keys", len(p.keys),
		"tiers", len(tiers),
		"max_strikes", escalation.MaxStrikes,
	)
	if p.metrics != nil {
		p.mu.Lock()
		counts := p.stateCountsLocked()
		p.mu.Unlock()
		p.metrics.UpdateKeyGauges(counts)
	}

	return p, nil
}

// buildKeys converts store rows to key state, skipping rows whose tier
// the pool does not serve.
func (p *Pool) buildKeys(rows []storage.KeyRow) map[string]*keyState {
	keys := make(map[string]*keyState, len(rows))
	for _, row := range rows {
		tier, err := ParseTier(row.Tier)
		if err != nil {
			p.logger.Warn("skipping key with unknown tier", "key_id", row.ID, "tier", row.Tier)
			continue
		}
		if _, ok := p.tiers[tier]; !ok {
			p.logger.Warn("skipping key with unconfigured tier", "key_id", row.ID, "tier", row.Tier)
			continue
		}
		keys[row.ID] = &keyState{
			id:            row.ID,
			secret:        row.Secret,
			tier:          tier,
			priority:      row.Priority,
			strikes:       row.Strikes,
			cooldownUntil: row.CooldownUntil,
		}
	}
	return keys
}

// Checkout hands out the best eligible key of the tier: lowest
// priority value first, ties broken by fewest recent uses. A key is
// eligible when it is not retired, not held, past any cooldown, and
// its quota windows admit the estimated tokens. Absence of an eligible
// key is a supply signal, not an error; Checkout never blocks.
func (p *Pool) Checkout(tier Tier, estimatedTokens int) (*Lease, bool) {
	limits, ok := p.tiers[tier]
	if !ok {
		p.logger.Warn("checkout for unconfigured tier", "tier", string(tier))
		if p.metrics != nil {
			p.metrics.RecordMiss(tier, missUnknownTier)
		}
		p.emit(audit.KindCheckoutMiss, "", tier, 0, 0, missUnknownTier)
		return nil, false
	}
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}

	now := p.now()

	p.mu.Lock()
	candidates := p.tierKeysLocked(tier)
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.recentUses != b.recentUses {
			return a.recentUses < b.recentUses
		}
		return a.id < b.id
	})

	var chosen *keyState
	var blockedQuota, blockedCooling, blockedHeld, blockedRetired int
	for _, ks := range candidates {
		if ks.retired {
			blockedRetired++
			continue
		}
		if ks.checkedOut {
			blockedHeld++
			continue
		}
		if ks.cooldownUntil.After(now) {
			blockedCooling++
			continue
		}
		if admitted, _ := ks.window.Admit(now, limits, estimatedTokens); !admitted {
			blockedQuota++
			continue
		}
		chosen = ks
		break
	}

	if chosen == nil {
		reason := missReason(len(candidates), blockedQuota, blockedCooling, blockedHeld, blockedRetired)
		p.mu.Unlock()

		p.logger.Debug("checkout miss",
			"tier", string(tier),
			"reason", reason,
			"estimated_tokens", estimatedTokens,
		)
		if p.metrics != nil {
			p.metrics.RecordMiss(tier, reason)
		}
		p.emit(audit.KindCheckoutMiss, "", tier, estimatedTokens, 0, reason)
		return nil, false
	}

	token := uuid.NewString()
	chosen.checkedOut = true
	chosen.leaseToken = token
	chosen.recentUses++
	p.leases[token] = chosen

	lease := &Lease{
		KeyID:  chosen.id,
		Tier:   chosen.tier,
		Secret: chosen.secret,
		token:  token,
	}
	suffix := logging.KeySuffix(chosen.secret)
	counts := p.stateCountsIfMetricsLocked()
	p.mu.Unlock()

	p.logger.Debug("key checked out",
		"key_id", lease.KeyID,
		"key_suffix", suffix,
		"tier", string(tier),
		"estimated_tokens", estimatedTokens,
	)
	if p.metrics != nil {
		p.metrics.RecordCheckout(tier)
		p.metrics.UpdateKeyGauges(counts)
	}
	p.emit(audit.KindCheckout, lease.KeyID, tier, estimatedTokens, 0, "")

	return lease, true
}

// missReason picks the dominant reason a scan came up empty.
func missReason(total, quotaBlocked, cooling, held, retired int) string {
	switch {
	case total == 0:
		return missNoKeys
	case quotaBlocked > 0:
		return missQuota
	case cooling > 0:
		return missCooling
	case held > 0:
		return missCheckedOut
	case retired > 0:
		return missRetired
	default:
		return missNoKeys
	}
}

// ReportUsage settles a lease after a successful call: usage lands in
// the quota windows, strikes reset to zero, and the key returns to
// rotation. The penalty writeback happens outside the lock and its
// failure is logged, never returned.
func (p *Pool) ReportUsage(lease *Lease, tokensConsumed int) error {
	now := p.now()

	p.mu.Lock()
	ks, lerr := p.settleLocked("report_usage", lease)
	if lerr != nil {
		p.mu.Unlock()
		return lerr
	}

	ks.strikes = 0
	ks.cooldownUntil = time.Time{}
	ks.window.Record(now, tokensConsumed)

	id, tier := ks.id, ks.tier
	counts := p.stateCountsIfMetricsLocked()
	p.mu.Unlock()

	go p.persist(id, 0, time.Time{})

	p.logger.Debug("usage reported",
		"key_id", id,
		"tier", string(tier),
		"tokens", tokensConsumed,
	)
	if p.metrics != nil {
		p.metrics.RecordReport(tier, string(audit.KindUsage))
		p.metrics.RecordTokens(tier, tokensConsumed)
		p.metrics.UpdateKeyGauges(counts)
	}
	p.emit(audit.KindUsage, id, tier, tokensConsumed, 0, "")

	return nil
}

// ReportFailure settles a lease after a failed call. An info failure
// says nothing about the key: it returns to rotation untouched. A
// non-info failure costs a strike and suspends the key per the
// escalation schedule; the key rejoins rotation on the first scan
// after the cooldown passes.
func (p *Pool) ReportFailure(lease *Lease, info bool) error {
	now := p.now()

	p.mu.Lock()
	ks, lerr := p.settleLocked("report_failure", lease)
	if lerr != nil {
		p.mu.Unlock()
		return lerr
	}

	if info {
		id, tier, strikes := ks.id, ks.tier, ks.strikes
		counts := p.stateCountsIfMetricsLocked()
		p.mu.Unlock()

		p.logger.Debug("info failure reported", "key_id", id, "tier", string(tier))
		if p.metrics != nil {
			p.metrics.RecordReport(tier, string(audit.KindInfoFailure))
			p.metrics.UpdateKeyGauges(counts)
		}
		p.emit(audit.KindInfoFailure, id, tier, 0, strikes, "")
		return nil
	}

	ks.strikes++
	suspension := p.escalation.Suspension(ks.strikes)
	ks.cooldownUntil = now.Add(suspension)

	id, tier, strikes, until := ks.id, ks.tier, ks.strikes, ks.cooldownUntil
	counts := p.stateCountsIfMetricsLocked()
	p.mu.Unlock()

	go p.persist(id, strikes, until)

	p.logger.Warn("key failure recorded",
		"key_id", id,
		"tier", string(tier),
		"strikes", strikes,
		"suspension", suspension.String(),
	)
	if p.metrics != nil {
		p.metrics.RecordReport(tier, string(audit.KindFailure))
		p.metrics.UpdateKeyGauges(counts)
	}
	p.emit(audit.KindFailure, id, tier, 0, strikes, suspension.String())

	return nil
}

// ReportFatal settles a lease after an unrecoverable credential error.
// The key leaves rotation for the rest of the process lifetime; only a
// registry refresh brings it back. Retirement is not persisted.
func (p *Pool) ReportFatal(lease *Lease) error {
	p.mu.Lock()
	ks, lerr := p.settleLocked("report_fatal", lease)
	if lerr != nil {
		p.mu.Unlock()
		return lerr
	}

	ks.retired = true
	id, tier, strikes := ks.id, ks.tier, ks.strikes
	counts := p.stateCountsIfMetricsLocked()
	p.mu.Unlock()

	p.logger.Error("key fatally retired",
		"key_id", id,
		"tier", string(tier),
	)
	if p.metrics != nil {
		p.metrics.RecordReport(tier, string(audit.KindFatal))
		p.metrics.UpdateKeyGauges(counts)
	}
	p.emit(audit.KindFatal, id, tier, 0, strikes, "")

	return nil
}

// settleLocked resolves a lease to its key and ends the hold. The
// token is deleted so a second report on the same lease fails with
// ErrInvalidLease instead of corrupting pool counts.
func (p *Pool) settleLocked(op string, lease *Lease) (*keyState, *LeaseError) {
	if lease == nil || lease.token == "" {
		return nil, &LeaseError{Op: op, Err: ErrInvalidLease}
	}
	ks, ok := p.leases[lease.token]
	if !ok {
		return nil, &LeaseError{Op: op, KeyID: lease.KeyID, Err: ErrInvalidLease}
	}
	delete(p.leases, lease.token)
	ks.checkedOut = false
	ks.leaseToken = ""
	return ks, nil
}

// TierKeyCount returns the number of keys of the tier not fatally
// retired. Callers size their worker pools from this.
func (p *Pool) TierKeyCount(tier Tier) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, ks := range p.keys {
		if ks.tier == tier && !ks.retired {
			n++
		}
	}
	return n
}

// Refresh reloads the registry from the store. Retirement flags are
// session-scoped and cleared; strikes and cooldowns come back as
// persisted. Keys that survive the reload keep their usage windows and
// recent-use counts, so a refresh never re-grants consumed quota. A
// checked-out key is never duplicated into the available set: its
// state updates in place and the hold stands until the lease settles.
func (p *Pool) Refresh(ctx context.Context) error {
	start := time.Now()

	rows, err := p.store.LoadAll(ctx)
	if err != nil {
		p.logger.Error("registry refresh failed", "error", err)
		if p.metrics != nil {
			p.metrics.RecordRefresh(err, 0)
		}
		return fmt.Errorf("refresh: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	next := make(map[string]*keyState, len(rows))
	added, kept := 0, 0
	for _, row := range rows {
		tier, err := ParseTier(row.Tier)
		if err != nil {
			p.logger.Warn("skipping key with unknown tier", "key_id", row.ID, "tier", row.Tier)
			continue
		}
		if _, ok := p.tiers[tier]; !ok {
			p.logger.Warn("skipping key with unconfigured tier", "key_id", row.ID, "tier", row.Tier)
			continue
		}

		if ks, ok := p.keys[row.ID]; ok {
			// Identity and persisted penalty follow the store; live
			// session state stays.
			ks.secret = row.Secret
			ks.tier = tier
			ks.priority = row.Priority
			ks.strikes = row.Strikes
			ks.cooldownUntil = row.CooldownUntil
			ks.retired = false
			next[row.ID] = ks
			kept++
		} else {
			next[row.ID] = &keyState{
				id:            row.ID,
				secret:        row.Secret,
				tier:          tier,
				priority:      row.Priority,
				strikes:       row.Strikes,
				cooldownUntil: row.CooldownUntil,
			}
			added++
		}
	}
	removed := len(p.keys) - kept
	total := len(next)
	p.keys = next
	counts := p.stateCountsIfMetricsLocked()
	p.mu.Unlock()

	duration := time.Since(start)
	p.logger.Info("registry refreshed",
		"keys", total,
		"added", added,
		"removed", removed,
		"duration_ms", duration.Milliseconds(),
	)
	if p.metrics != nil {
		p.metrics.RecordRefresh(nil, duration)
		p.metrics.UpdateKeyGauges(counts)
	}
	p.emit(audit.KindRefresh, "", "", 0, 0,
		fmt.Sprintf("keys=%d added=%d removed=%d", total, added, removed))

	return nil
}

// Snapshot returns a point-in-time status of every key, ordered by
// tier, priority, then id. Secrets appear only as their last-4 suffix.
func (p *Pool) Snapshot() []KeyStatus {
	now := p.now()

	p.mu.Lock()
	statuses := make([]KeyStatus, 0, len(p.keys))
	for _, ks := range p.keys {
		// Roll a copy so expired windows read as empty without
		// mutating live state.
		w := ks.window
		w.Roll(now)
		statuses = append(statuses, KeyStatus{
			ID:            ks.id,
			Tier:          ks.tier,
			Priority:      ks.priority,
			State:         ks.stateAt(now),
			Strikes:       ks.strikes,
			CooldownUntil: ks.cooldownUntil,
			RequestsToday: w.RequestsToday,
			Retired:       ks.retired,
			SecretSuffix:  logging.KeySuffix(ks.secret),
		})
	}
	p.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return statuses
}

// Close drains the audit recorder and closes the key store. Reports
// arriving after Close still settle in memory, but their writebacks
// fail against the closed store and are logged.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	if p.recorder != nil {
		if err := p.recorder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// tierKeysLocked collects the keys of one tier.
func (p *Pool) tierKeysLocked(tier Tier) []*keyState {
	keys := make([]*keyState, 0, len(p.keys))
	for _, ks := range p.keys {
		if ks.tier == tier {
			keys = append(keys, ks)
		}
	}
	return keys
}

// stateCountsLocked tallies keys by tier and state for the gauges.
func (p *Pool) stateCountsLocked() map[Tier]map[State]int {
	now := p.now()
	counts := make(map[Tier]map[State]int, len(p.tiers))
	for tier := range p.tiers {
		counts[tier] = make(map[State]int, 4)
	}
	for _, ks := range p.keys {
		c, ok := counts[ks.tier]
		if !ok {
			c = make(map[State]int, 4)
			counts[ks.tier] = c
		}
		c[ks.stateAt(now)]++
	}
	return counts
}

// stateCountsIfMetricsLocked avoids the tally when no metrics are
// attached.
func (p *Pool) stateCountsIfMetricsLocked() map[Tier]map[State]int {
	if p.metrics == nil {
		return nil
	}
	return p.stateCountsLocked()
}

// persist writes one key's penalty state back to the store. Failures
// are logged and counted, never propagated.
func (p *Pool) persist(id string, strikes int, cooldownUntil time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.SaveKeyState(ctx, id, strikes, cooldownUntil); err != nil {
		p.logger.Error("failed to persist key state", "key_id", id, "error", err)
		if p.metrics != nil {
			p.metrics.RecordPersistFailure()
		}
	}
}

// emit journals one pool event when a recorder is attached.
func (p *Pool) emit(kind audit.Kind, keyID string, tier Tier, tokens, strikes int, detail string) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(audit.Event{
		Kind:    kind,
		KeyID:   keyID,
		Tier:    string(tier),
		Tokens:  tokens,
		Strikes: strikes,
		Detail:  detail,
	})
}
