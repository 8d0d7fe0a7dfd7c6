package keypool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"workbench-hq/keywarden/pkg/keypool/cooldown"
	"workbench-hq/keywarden/pkg/keypool/storage"
)

// ============================================================
// Test fixtures
// ============================================================

// stubStore is a Backend with settable rows and injectable errors.
type stubStore struct {
	mu      sync.Mutex
	rows    []storage.KeyRow
	loadErr error
	saveErr error
	saves   []savedState
}

type savedState struct {
	id            string
	strikes       int
	cooldownUntil time.Time
}

func newStubStore(rows ...storage.KeyRow) *stubStore {
	return &stubStore{rows: rows}
}

func (s *stubStore) LoadAll(_ context.Context) ([]storage.KeyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]storage.KeyRow, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *stubStore) SaveKeyState(_ context.Context, id string, strikes int, cooldownUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, savedState{id: id, strikes: strikes, cooldownUntil: cooldownUntil})
	return nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) setRows(rows ...storage.KeyRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *stubStore) setLoadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

func (s *stubStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *stubStore) savedStates() []savedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]savedState, len(s.saves))
	copy(out, s.saves)
	return out
}

// waitForSaves polls until the store has seen at least n writebacks.
// The pool persists asynchronously, so tests wait rather than assume.
func (s *stubStore) waitForSaves(t *testing.T, n int) []savedState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if saves := s.savedStates(); len(saves) >= n {
			return saves
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writebacks, got %d", n, len(s.savedStates()))
	return nil
}

// fakeClock is a settable clock safe for concurrent reads.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t0 time.Time) *fakeClock {
	return &fakeClock{t: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func row(id string, tier Tier, priority int) storage.KeyRow {
	return storage.KeyRow{
		ID:       id,
		Secret:   "secret-value-" + id,
		Tier:     string(tier),
		Priority: priority,
	}
}

// limitsFor configures one tier; the other tiers are not served.
func limitsFor(tier Tier, rpm, tpm, rpd int) map[Tier]TierLimits {
	return map[Tier]TierLimits{
		tier: {RequestsPerMinute: rpm, TokensPerMinute: tpm, RequestsPerDay: rpd},
	}
}

// wideLimits admits effectively unlimited traffic for tests that are
// not about quotas.
func wideLimits(tier Tier) map[Tier]TierLimits {
	return limitsFor(tier, 1_000_000, 1_000_000_000, 1_000_000)
}

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	pool, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pool
}

// cycle checks out a key and settles it with a usage report.
func cycle(t *testing.T, pool *Pool, tier Tier, tokens int) {
	t.Helper()
	lease, ok := pool.Checkout(tier, tokens)
	if !ok {
		t.Fatalf("checkout of %s unexpectedly absent", tier)
	}
	if err := pool.ReportUsage(lease, tokens); err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}
}

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================
// Construction
// ============================================================

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}
}

func TestNew_RejectsUnknownTier(t *testing.T) {
	_, err := New(Config{
		Store: newStubStore(),
		Tiers: map[Tier]TierLimits{Tier("mystery"): {RequestsPerMinute: 1, TokensPerMinute: 1, RequestsPerDay: 1}},
	})
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestNew_RejectsNonPositiveLimits(t *testing.T) {
	tests := []struct {
		name   string
		limits TierLimits
	}{
		{"zero rpm", TierLimits{RequestsPerMinute: 0, TokensPerMinute: 1, RequestsPerDay: 1}},
		{"zero tpm", TierLimits{RequestsPerMinute: 1, TokensPerMinute: 0, RequestsPerDay: 1}},
		{"negative rpd", TierLimits{RequestsPerMinute: 1, TokensPerMinute: 1, RequestsPerDay: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{
				Store: newStubStore(),
				Tiers: map[Tier]TierLimits{TierFlash: tt.limits},
			})
			if !errors.Is(err, ErrInvalidLimits) {
				t.Fatalf("expected ErrInvalidLimits, got %v", err)
			}
		})
	}
}

func TestNew_RejectsBrokenEscalation(t *testing.T) {
	_, err := New(Config{
		Store:      newStubStore(),
		Escalation: cooldown.Schedule{Steps: []time.Duration{-1}, MaxStrikes: 5, HardBlock: time.Hour},
	})
	if err == nil {
		t.Fatal("expected error for broken escalation schedule")
	}
}

func TestNew_PropagatesLoadError(t *testing.T) {
	store := newStubStore()
	store.setLoadErr(errors.New("disk on fire"))
	if _, err := New(Config{Store: store}); err == nil {
		t.Fatal("expected load error to propagate")
	}
}

func TestNew_SkipsRowsOutsideServedTiers(t *testing.T) {
	store := newStubStore(
		row("key-good", TierFlash, 1),
		row("key-bad", Tier("mystery"), 1),
		row("key-pro", TierPro, 1), // valid tier, but not served
	)
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	if n := pool.TierKeyCount(TierFlash); n != 1 {
		t.Errorf("TierKeyCount(flash) = %d, want 1", n)
	}
	if n := pool.TierKeyCount(TierPro); n != 0 {
		t.Errorf("TierKeyCount(pro) = %d, want 0", n)
	}
}

// ============================================================
// Checkout ordering
// ============================================================

func TestCheckout_PriorityOrder(t *testing.T) {
	store := newStubStore(
		row("key-low", TierFlash, 30),
		row("key-top", TierFlash, 10),
		row("key-mid", TierFlash, 20),
	)
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("checkout failed")
	}
	if lease.KeyID != "key-top" {
		t.Errorf("checkout picked %s, want key-top", lease.KeyID)
	}
}

func TestCheckout_SpreadsAcrossEqualPriority(t *testing.T) {
	store := newStubStore(
		row("key-a", TierFlash, 10),
		row("key-b", TierFlash, 10),
	)
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	// First checkout breaks the tie by id; the second must go to the
	// other key, which now has fewer recent uses.
	first, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("first checkout failed")
	}
	if err := pool.ReportUsage(first, 0); err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}

	second, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("second checkout failed")
	}
	if second.KeyID == first.KeyID {
		t.Errorf("second checkout reused %s instead of spreading", first.KeyID)
	}
}

func TestCheckout_SameKeyNeverHeldTwice(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("first checkout failed")
	}
	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("second checkout returned a held key")
	}

	if err := pool.ReportUsage(lease, 0); err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("checkout after settle failed")
	}
}

func TestCheckout_UnservedTierIsAbsent(t *testing.T) {
	pool := newTestPool(t, Config{
		Store: newStubStore(row("key-1", TierFlash, 1)),
		Tiers: wideLimits(TierFlash),
	})
	if _, ok := pool.Checkout(TierPro, 0); ok {
		t.Fatal("checkout for unserved tier succeeded")
	}
	if _, ok := pool.Checkout(Tier("mystery"), 0); ok {
		t.Fatal("checkout for unknown tier succeeded")
	}
}

func TestLease_StringOmitsSecret(t *testing.T) {
	pool := newTestPool(t, Config{
		Store: newStubStore(row("key-1", TierFlash, 1)),
		Tiers: wideLimits(TierFlash),
	})
	lease, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("checkout failed")
	}
	if s := lease.String(); strings.Contains(s, lease.Secret) {
		t.Errorf("lease string exposes the secret: %s", s)
	}
}

// ============================================================
// Quota enforcement
// ============================================================

func TestCheckout_MinuteRequestBoundary(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: limitsFor(TierFlash, 20, 1_000_000, 1_000_000)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	// At 19 recorded requests the key is still eligible.
	for i := 0; i < 19; i++ {
		cycle(t, pool, TierFlash, 1)
	}
	lease, ok := pool.Checkout(TierFlash, 1)
	if !ok {
		t.Fatal("20th request should be admitted")
	}
	if err := pool.ReportUsage(lease, 1); err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}

	// At 20 the minute cap is reached.
	if _, ok := pool.Checkout(TierFlash, 1); ok {
		t.Fatal("21st request in the same minute should be refused")
	}

	// A new minute clears the window.
	clk.Advance(61 * time.Second)
	if _, ok := pool.Checkout(TierFlash, 1); !ok {
		t.Fatal("checkout after minute rollover failed")
	}
}

func TestCheckout_TokenBudget(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: limitsFor(TierFlash, 1000, 1000, 1_000_000)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	cycle(t, pool, TierFlash, 600)

	// 600 consumed: an estimate of 401 no longer fits, 400 exactly does.
	if _, ok := pool.Checkout(TierFlash, 401); ok {
		t.Fatal("estimate past the token budget was admitted")
	}
	lease, ok := pool.Checkout(TierFlash, 400)
	if !ok {
		t.Fatal("estimate filling the budget exactly was refused")
	}
	pool.ReportUsage(lease, 400)
}

func TestCheckout_OversizedEstimateNeverAdmits(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: limitsFor(TierFlash, 1000, 1000, 1_000_000)})

	// The estimate alone exceeds the tier's token budget; even an idle
	// key cannot admit it.
	if _, ok := pool.Checkout(TierFlash, 2000); ok {
		t.Fatal("oversized estimate was admitted")
	}
}

func TestCheckout_DailyCap(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: limitsFor(TierFlash, 1000, 1_000_000, 3)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	for i := 0; i < 3; i++ {
		cycle(t, pool, TierFlash, 1)
		clk.Advance(61 * time.Second) // stay clear of the minute cap
	}

	if _, ok := pool.Checkout(TierFlash, 1); ok {
		t.Fatal("checkout past the daily cap succeeded")
	}

	// Crossing UTC midnight resets the day window.
	clk.Advance(12*time.Hour + time.Second)
	if _, ok := pool.Checkout(TierFlash, 1); !ok {
		t.Fatal("checkout after UTC day rollover failed")
	}
}

func TestCheckout_FreeTierDayEnvelope(t *testing.T) {
	store := newStubStore(row("key-1", TierFlashLiteFree, 1))
	pool := newTestPool(t, Config{
		Store: store,
		Tiers: map[Tier]TierLimits{TierFlashLiteFree: DefaultTierLimits()[TierFlashLiteFree]},
	})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	// The default free-tier envelope admits 20 calls per day. Spacing
	// them a minute apart keeps the minute window out of the picture.
	for i := 0; i < 20; i++ {
		cycle(t, pool, TierFlashLiteFree, 50)
		clk.Advance(61 * time.Second)
	}

	if _, ok := pool.Checkout(TierFlashLiteFree, 50); ok {
		t.Fatal("21st request of the day should be refused")
	}

	// Hours later, same UTC day: still refused.
	clk.Advance(6 * time.Hour)
	if _, ok := pool.Checkout(TierFlashLiteFree, 50); ok {
		t.Fatal("daily cap must hold for the rest of the day")
	}

	// The next UTC day opens a fresh envelope.
	clk.Advance(12 * time.Hour)
	if _, ok := pool.Checkout(TierFlashLiteFree, 50); !ok {
		t.Fatal("checkout after UTC day rollover failed")
	}
}

// ============================================================
// Strike escalation
// ============================================================

func TestReportFailure_EscalationExactness(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	want := []time.Duration{
		10 * time.Second,  // strike 1
		60 * time.Second,  // strike 2
		5 * time.Minute,   // strike 3
		1 * time.Hour,     // strike 4
		24 * time.Hour,    // strike 5: hard block
		24 * time.Hour,    // strike 6: hard block repeats
	}

	for i, suspension := range want {
		lease, ok := pool.Checkout(TierFlash, 0)
		if !ok {
			t.Fatalf("strike %d: checkout failed", i+1)
		}
		if err := pool.ReportFailure(lease, false); err != nil {
			t.Fatalf("strike %d: ReportFailure failed: %v", i+1, err)
		}

		status := pool.Snapshot()[0]
		if status.Strikes != i+1 {
			t.Errorf("strike %d: counter = %d", i+1, status.Strikes)
		}
		wantUntil := clk.Now().Add(suspension)
		if !status.CooldownUntil.Equal(wantUntil) {
			t.Errorf("strike %d: cooldown until %v, want %v", i+1, status.CooldownUntil, wantUntil)
		}
		if status.State != StateCooling {
			t.Errorf("strike %d: state = %s, want cooling", i+1, status.State)
		}

		// The key must be ineligible until the suspension passes.
		if _, ok := pool.Checkout(TierFlash, 0); ok {
			t.Fatalf("strike %d: cooling key was checked out", i+1)
		}
		clk.Advance(suspension + time.Second)
	}
}

func TestReportUsage_ResetsStrikes(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	// Two strikes, waiting out each cooldown.
	for _, wait := range []time.Duration{10 * time.Second, 60 * time.Second} {
		lease, _ := pool.Checkout(TierFlash, 0)
		pool.ReportFailure(lease, false)
		clk.Advance(wait + time.Second)
	}

	cycle(t, pool, TierFlash, 1)

	status := pool.Snapshot()[0]
	if status.Strikes != 0 {
		t.Errorf("strikes after success = %d, want 0", status.Strikes)
	}
	if !status.CooldownUntil.IsZero() {
		t.Errorf("cooldown after success = %v, want zero", status.CooldownUntil)
	}

	// The next failure starts the ladder over.
	lease, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFailure(lease, false)
	status = pool.Snapshot()[0]
	if want := clk.Now().Add(10 * time.Second); !status.CooldownUntil.Equal(want) {
		t.Errorf("cooldown after reset = %v, want %v", status.CooldownUntil, want)
	}
}

func TestReportFailure_InfoIsNeutral(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	for i := 0; i < 5; i++ {
		lease, ok := pool.Checkout(TierFlash, 0)
		if !ok {
			t.Fatalf("round %d: info failure left the key unavailable", i+1)
		}
		if err := pool.ReportFailure(lease, true); err != nil {
			t.Fatalf("round %d: ReportFailure failed: %v", i+1, err)
		}
	}

	status := pool.Snapshot()[0]
	if status.Strikes != 0 {
		t.Errorf("strikes after info failures = %d, want 0", status.Strikes)
	}
	if !status.CooldownUntil.IsZero() {
		t.Errorf("cooldown after info failures = %v, want zero", status.CooldownUntil)
	}
}

func TestCooldownExpiryRestoresEligibility(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{
		Store: store,
		Tiers: wideLimits(TierFlash),
		Escalation: cooldown.Schedule{
			Steps:      []time.Duration{30 * time.Millisecond},
			MaxStrikes: 5,
			HardBlock:  time.Hour,
		},
	})

	lease, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFailure(lease, false)

	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("cooling key was checked out")
	}

	// No wake-up step: once the wall clock passes the expiry, the next
	// scan admits the key.
	time.Sleep(50 * time.Millisecond)
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("key not eligible after cooldown expiry")
	}
}

// ============================================================
// Fatal retirement
// ============================================================

func TestReportFatal_IsAbsorbing(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	lease, _ := pool.Checkout(TierFlash, 0)
	if err := pool.ReportFatal(lease); err != nil {
		t.Fatalf("ReportFatal failed: %v", err)
	}

	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("retired key was checked out")
	}

	// Not even days of cooldown expiry bring it back.
	clk.Advance(48 * time.Hour)
	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("retired key returned without a refresh")
	}

	if n := pool.TierKeyCount(TierFlash); n != 0 {
		t.Errorf("TierKeyCount counts a retired key: %d", n)
	}
	if status := pool.Snapshot()[0]; status.State != StateRetired || !status.Retired {
		t.Errorf("snapshot state = %s retired=%v, want retired", status.State, status.Retired)
	}
}

// ============================================================
// Refresh
// ============================================================

func TestRefresh_RestoresRetiredKeyAndKeepsPenalty(t *testing.T) {
	seeded := row("key-1", TierFlash, 1)
	seeded.Strikes = 2
	store := newStubStore(seeded)
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFatal(lease)

	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	status := pool.Snapshot()[0]
	if status.Retired {
		t.Error("refresh did not clear the retirement flag")
	}
	if status.Strikes != 2 {
		t.Errorf("refresh reset persisted strikes: %d, want 2", status.Strikes)
	}
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("refreshed key not eligible")
	}
}

func TestRefresh_PreservesConsumedQuota(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: limitsFor(TierFlash, 1000, 1_000_000, 2)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	cycle(t, pool, TierFlash, 1)
	cycle(t, pool, TierFlash, 1)
	if _, ok := pool.Checkout(TierFlash, 1); ok {
		t.Fatal("checkout past the daily cap succeeded")
	}

	// A refresh must not hand back the consumed daily quota.
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, ok := pool.Checkout(TierFlash, 1); ok {
		t.Fatal("refresh re-granted consumed daily quota")
	}
}

func TestRefresh_CheckedOutKeyNotDuplicated(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, _ := pool.Checkout(TierFlash, 0)

	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Still held: the reload must not mint a second available copy.
	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("refresh duplicated a checked-out key")
	}

	if err := pool.ReportUsage(lease, 1); err != nil {
		t.Fatalf("settling across a refresh failed: %v", err)
	}
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("key not available after settling")
	}
}

func TestRefresh_RemovedKeySettlesQuietly(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, _ := pool.Checkout(TierFlash, 0)

	store.setRows() // key deleted out from under the lease
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n := pool.TierKeyCount(TierFlash); n != 0 {
		t.Errorf("TierKeyCount after removal = %d, want 0", n)
	}

	// The holder is not punished for the removal: the report settles
	// without error and the key simply never returns.
	if err := pool.ReportUsage(lease, 1); err != nil {
		t.Fatalf("settling a removed key failed: %v", err)
	}
	if _, ok := pool.Checkout(TierFlash, 0); ok {
		t.Fatal("removed key came back into rotation")
	}
}

func TestRefresh_PicksUpNewKeys(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	store.setRows(row("key-1", TierFlash, 1), row("key-2", TierFlash, 2))
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n := pool.TierKeyCount(TierFlash); n != 2 {
		t.Errorf("TierKeyCount after refresh = %d, want 2", n)
	}
}

func TestRefresh_LoadErrorKeepsRegistry(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	store.setLoadErr(errors.New("db locked"))
	if err := pool.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	// The registry keeps serving the last good load.
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("registry lost after failed refresh")
	}
}

// ============================================================
// Lease validity
// ============================================================

func TestReport_SecondReportFails(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	lease, _ := pool.Checkout(TierFlash, 0)
	if err := pool.ReportUsage(lease, 1); err != nil {
		t.Fatalf("first report failed: %v", err)
	}

	err := pool.ReportUsage(lease, 1)
	if !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("second usage report: got %v, want ErrInvalidLease", err)
	}

	var lerr *LeaseError
	if !errors.As(err, &lerr) {
		t.Fatalf("error is not a *LeaseError: %v", err)
	}
	if lerr.Op != "report_usage" || lerr.KeyID != "key-1" {
		t.Errorf("LeaseError = %+v", lerr)
	}

	// Mixing report kinds does not help.
	if err := pool.ReportFailure(lease, false); !errors.Is(err, ErrInvalidLease) {
		t.Errorf("failure report on settled lease: got %v", err)
	}
	if err := pool.ReportFatal(lease); !errors.Is(err, ErrInvalidLease) {
		t.Errorf("fatal report on settled lease: got %v", err)
	}

	// The double report must not corrupt availability.
	if _, ok := pool.Checkout(TierFlash, 0); !ok {
		t.Fatal("key lost after double report")
	}
}

func TestReport_InvalidLeases(t *testing.T) {
	pool := newTestPool(t, Config{
		Store: newStubStore(row("key-1", TierFlash, 1)),
		Tiers: wideLimits(TierFlash),
	})

	tests := []struct {
		name  string
		lease *Lease
	}{
		{"nil lease", nil},
		{"zero lease", &Lease{}},
		{"forged token", &Lease{KeyID: "key-1", token: "forged"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := pool.ReportUsage(tt.lease, 1); !errors.Is(err, ErrInvalidLease) {
				t.Errorf("ReportUsage: got %v, want ErrInvalidLease", err)
			}
			if err := pool.ReportFailure(tt.lease, false); !errors.Is(err, ErrInvalidLease) {
				t.Errorf("ReportFailure: got %v, want ErrInvalidLease", err)
			}
			if err := pool.ReportFatal(tt.lease); !errors.Is(err, ErrInvalidLease) {
				t.Errorf("ReportFatal: got %v, want ErrInvalidLease", err)
			}
		})
	}
}

// ============================================================
// Persistence
// ============================================================

func TestReportUsage_PersistsResetState(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	cycle(t, pool, TierFlash, 1)

	saves := store.waitForSaves(t, 1)
	last := saves[len(saves)-1]
	if last.id != "key-1" || last.strikes != 0 || !last.cooldownUntil.IsZero() {
		t.Errorf("persisted state = %+v, want reset", last)
	}
}

func TestReportFailure_PersistsStrikeAndCooldown(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	lease, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFailure(lease, false)

	saves := store.waitForSaves(t, 1)
	last := saves[len(saves)-1]
	if last.strikes != 1 {
		t.Errorf("persisted strikes = %d, want 1", last.strikes)
	}
	if want := testEpoch.Add(10 * time.Second); !last.cooldownUntil.Equal(want) {
		t.Errorf("persisted cooldown = %v, want %v", last.cooldownUntil, want)
	}
}

func TestPersistFailure_NeverSurfaces(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	store.setSaveErr(errors.New("disk full"))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})

	// Every transition still succeeds and the key stays in rotation.
	cycle(t, pool, TierFlash, 1)

	lease, ok := pool.Checkout(TierFlash, 0)
	if !ok {
		t.Fatal("key lost to a persistence failure")
	}
	if err := pool.ReportFailure(lease, false); err != nil {
		t.Fatalf("ReportFailure surfaced a persistence error: %v", err)
	}
}

// ============================================================
// Snapshot
// ============================================================

func TestSnapshot_StatesAndOrdering(t *testing.T) {
	store := newStubStore(
		row("key-a", TierFlash, 10),
		row("key-b", TierFlash, 20),
		row("key-c", TierFlash, 30),
		row("key-d", TierFlash, 40),
	)
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	// key-a held, key-b cooling, key-c retired, key-d untouched.
	pool.Checkout(TierFlash, 0)

	cooling, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFailure(cooling, false)

	retired, _ := pool.Checkout(TierFlash, 0)
	pool.ReportFatal(retired)

	statuses := pool.Snapshot()
	if len(statuses) != 4 {
		t.Fatalf("snapshot has %d entries, want 4", len(statuses))
	}

	wantStates := map[string]State{
		"key-a": StateCheckedOut,
		"key-b": StateCooling,
		"key-c": StateRetired,
		"key-d": StateAvailable,
	}
	for i, want := range []string{"key-a", "key-b", "key-c", "key-d"} {
		got := statuses[i]
		if got.ID != want {
			t.Fatalf("snapshot[%d] = %s, want %s (priority order)", i, got.ID, want)
		}
		if got.State != wantStates[want] {
			t.Errorf("%s state = %s, want %s", want, got.State, wantStates[want])
		}
	}

	// Secrets are "secret-value-<id>", so the surfaced suffix is the
	// id's last four characters and never the full credential.
	for _, status := range statuses {
		if status.SecretSuffix != status.ID[len(status.ID)-4:] {
			t.Errorf("%s suffix = %q", status.ID, status.SecretSuffix)
		}
	}
}

func TestSnapshot_CountsRequestsToday(t *testing.T) {
	store := newStubStore(row("key-1", TierFlash, 1))
	pool := newTestPool(t, Config{Store: store, Tiers: wideLimits(TierFlash)})
	clk := newFakeClock(testEpoch)
	pool.now = clk.Now

	for i := 0; i < 3; i++ {
		cycle(t, pool, TierFlash, 10)
	}
	if got := pool.Snapshot()[0].RequestsToday; got != 3 {
		t.Errorf("RequestsToday = %d, want 3", got)
	}

	// The day counter survives minute rollovers and dies at midnight.
	clk.Advance(2 * time.Minute)
	if got := pool.Snapshot()[0].RequestsToday; got != 3 {
		t.Errorf("RequestsToday after minute roll = %d, want 3", got)
	}
	clk.Advance(24 * time.Hour)
	if got := pool.Snapshot()[0].RequestsToday; got != 0 {
		t.Errorf("RequestsToday after day roll = %d, want 0", got)
	}
}

// ============================================================
// Close
// ============================================================

func TestClose_Idempotent(t *testing.T) {
	pool := newTestPool(t, Config{
		Store: newStubStore(row("key-1", TierFlash, 1)),
		Tiers: wideLimits(TierFlash),
	})

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := pool.Refresh(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Refresh after Close: got %v, want ErrPoolClosed", err)
	}
}

// ============================================================
// Benchmarks
// ============================================================

func BenchmarkCheckoutReportCycle(b *testing.B) {
	rows := make([]storage.KeyRow, 8)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("key-%d", i), TierFlash, i)
	}
	pool, err := New(Config{Store: newStubStore(rows...), Tiers: wideLimits(TierFlash)})
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lease, ok := pool.Checkout(TierFlash, 100)
		if !ok {
			b.Fatal("checkout failed")
		}
		if err := pool.ReportUsage(lease, 100); err != nil {
			b.Fatal(err)
		}
	}
}
