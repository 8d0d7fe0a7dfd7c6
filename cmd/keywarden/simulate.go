package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/audit"
	"workbench-hq/keywarden/pkg/cli"
	"workbench-hq/keywarden/pkg/config"
	"workbench-hq/keywarden/pkg/keypool"
	"workbench-hq/keywarden/pkg/keypool/storage"
	"workbench-hq/keywarden/pkg/outcome"
	"workbench-hq/keywarden/pkg/refresh"
	"workbench-hq/keywarden/pkg/telemetry/logging"
	"workbench-hq/keywarden/pkg/tokens"
)

var simulateFlags struct {
	tier        string
	workers     int
	requests    int
	keys        int
	store       string
	seed        int64
	failureRate float64
	fatalRate   float64
	quiet       bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic load simulation against the pool",
	Long: `Spin up a worker pool that checks keys out, simulates upstream calls
with a configurable outcome mix, and reports every lease back.

Workers default to the pool's usable key count for the tier, the
recommended sizing for callers. The simulation exercises quota
admission, cooldown escalation, and fatal retirement exactly as a real
workload would, and prints admission and miss statistics at the end.

By default the simulation runs against an in-memory store seeded with
synthetic keys, leaving the configured store untouched. With
--store sqlite it loads the configured key database instead; penalty
writebacks then persist, and any configured refresh schedule or file
watch runs for the duration, so keys added mid-run join the pool.

Examples:
  # 500 requests against 3 synthetic flash keys
  keywarden simulate --tier flash --requests 500

  # Reproducible run with a fixed seed and a harsher failure mix
  keywarden simulate --seed 42 --failure-rate 0.2 --fatal-rate 0.01

  # Exercise the real key database
  keywarden simulate --store sqlite --tier pro --requests 50`,
	RunE: simulateRun,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simulateFlags.tier, "tier", "flash", "tier to exercise")
	simulateCmd.Flags().IntVar(&simulateFlags.workers, "workers", 0, "worker count (0 = usable key count)")
	simulateCmd.Flags().IntVar(&simulateFlags.requests, "requests", 100, "total requests to simulate")
	simulateCmd.Flags().IntVar(&simulateFlags.keys, "keys", 3, "synthetic key count for the memory store")
	simulateCmd.Flags().StringVar(&simulateFlags.store, "store", "memory", "key store: memory, sqlite")
	simulateCmd.Flags().Int64Var(&simulateFlags.seed, "seed", 0, "random seed (0 = time-based)")
	simulateCmd.Flags().Float64Var(&simulateFlags.failureRate, "failure-rate", 0.05, "fraction of calls failing with a strike")
	simulateCmd.Flags().Float64Var(&simulateFlags.fatalRate, "fatal-rate", 0.0, "fraction of calls failing fatally")
	simulateCmd.Flags().BoolVar(&simulateFlags.quiet, "quiet", false, "suppress the progress bar")
}

// simStats aggregates worker-side counters for the final report.
type simStats struct {
	admitted  atomic.Int64
	succeeded atomic.Int64
	infoFails atomic.Int64
	strikes   atomic.Int64
	fatals    atomic.Int64
	misses    atomic.Int64
	starved   atomic.Int64
	tokens    atomic.Int64
}

// maxAttemptsPerRequest bounds how long one simulated request retries
// after checkout misses before it is counted as starved.
const maxAttemptsPerRequest = 200

func simulateRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tier, err := keypool.ParseTier(simulateFlags.tier)
	if err != nil {
		return cli.NewUsageError("unknown tier %q (valid: pro, flash, flash-lite-free)", simulateFlags.tier)
	}
	if simulateFlags.requests <= 0 {
		return cli.NewUsageError("--requests must be positive")
	}
	if simulateFlags.failureRate < 0 || simulateFlags.fatalRate < 0 ||
		simulateFlags.failureRate+simulateFlags.fatalRate > 1 {
		return cli.NewUsageError("failure rates must be non-negative and sum to at most 1")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewConfigError("logging", err.Error())
	}

	seed := simulateFlags.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	store, err := simulationStore(cfg, tier, seed)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	defer store.Close()

	// The journal always records in memory here so the run can be
	// summarized, regardless of the configured audit backend.
	journal := audit.NewMemoryStore(simulateFlags.requests * 2)
	recorder := audit.NewRecorder(journal, audit.Config{Logger: logger})

	pool, err := buildPool(cfg, store, logger, recorder)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	defer pool.Close()

	stopRefreshers, err := startRefreshers(cfg, pool, logger)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	defer stopRefreshers()

	workers := simulateFlags.workers
	if workers <= 0 {
		workers = pool.TierKeyCount(tier)
	}
	if workers == 0 {
		return cli.NewCommandError("simulate",
			fmt.Errorf("no usable keys for tier %s", tier))
	}

	fmt.Println("Keywarden Simulation")
	fmt.Println("====================")
	fmt.Printf("Tier:     %s (%d keys)\n", tier, pool.TierKeyCount(tier))
	fmt.Printf("Workers:  %d", workers)
	if simulateFlags.workers <= 0 {
		fmt.Print(" (sized from usable key count)")
	}
	fmt.Println()
	fmt.Printf("Requests: %d\n", simulateFlags.requests)
	fmt.Printf("Seed:     %d\n", seed)
	fmt.Println()

	var progress cli.ProgressReporter = cli.NopProgress{}
	if !simulateFlags.quiet {
		progress = cli.NewProgressReporter(nil)
	}

	ctx := cli.SetupSignalHandler()
	stats := runSimulation(ctx, pool, tier, workers, simulateFlags.requests, seed, progress)

	// Drain the journal before reading it.
	_ = recorder.Close()

	printSimulationReport(pool, tier, stats, journal, recorder.Dropped())
	return nil
}

// startRefreshers starts the configured background reloads for the
// duration of the run: the cron scheduler when refresh is enabled, and
// the database file watcher when the run uses the SQLite key database.
// The returned function stops whatever was started.
func startRefreshers(cfg *config.Config, pool *keypool.Pool, logger *logging.Logger) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.Refresh.Enabled {
		sched := refresh.NewScheduler(pool, refresh.SchedulerConfig{
			Schedule: cfg.Refresh.Schedule,
			Timeout:  cfg.Refresh.Timeout,
			Logger:   logger,
		})
		if err := sched.Start(); err != nil {
			return nil, err
		}
		stops = append(stops, sched.Stop)
	}

	if cfg.Refresh.Watch && simulateFlags.store == "sqlite" {
		watcher, err := refresh.NewWatcher(pool, refresh.WatcherConfig{
			Path:     cfg.Storage.SQLite.Path,
			Debounce: cfg.Refresh.Debounce,
			Timeout:  cfg.Refresh.Timeout,
			Logger:   logger,
		})
		if err != nil {
			stopAll()
			return nil, err
		}
		if err := watcher.Start(); err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, func() { _ = watcher.Stop() })
	}

	return stopAll, nil
}

// simulationStore builds the key store for the run: a seeded memory
// store by default, or the configured SQLite database.
func simulationStore(cfg *config.Config, tier keypool.Tier, seed int64) (keyStore, error) {
	if simulateFlags.store == "sqlite" {
		return openKeyStore(cfg)
	}

	store := storage.NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= simulateFlags.keys; i++ {
		row := storage.KeyRow{
			ID:       fmt.Sprintf("sim-key-%d", i),
			Secret:   fmt.Sprintf("sk-sim-%d-%08x", i, seed&0xffffffff),
			Tier:     tier.String(),
			Priority: 1,
		}
		if err := store.InsertKey(ctx, row); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// runSimulation fans out the requests over the workers and waits for
// completion or interruption.
func runSimulation(ctx context.Context, pool *keypool.Pool, tier keypool.Tier, workers, requests int, seed int64, progress cli.ProgressReporter) *simStats {
	stats := &simStats{}
	var remaining atomic.Int64
	remaining.Store(int64(requests))

	var settled atomic.Int64
	progress.Start(int64(requests))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(workerID)))

			for {
				if ctx.Err() != nil {
					return
				}
				if remaining.Add(-1) < 0 {
					return
				}

				simulateRequest(ctx, pool, tier, rng, stats)
				progress.Update(settled.Add(1))
			}
		}(w)
	}
	wg.Wait()
	progress.Finish()

	return stats
}

// simulateRequest runs one request: checkout with retries, a fake
// upstream call, and the outcome report.
func simulateRequest(ctx context.Context, pool *keypool.Pool, tier keypool.Tier, rng *rand.Rand, stats *simStats) {
	prompt := syntheticPrompt(rng)
	estimate := tokens.Estimate(prompt)

	var lease *keypool.Lease
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt >= maxAttemptsPerRequest {
			stats.starved.Add(1)
			return
		}

		var ok bool
		lease, ok = pool.Checkout(tier, estimate)
		if ok {
			break
		}
		stats.misses.Add(1)
		time.Sleep(time.Duration(5+rng.Intn(15)) * time.Millisecond)
	}
	stats.admitted.Add(1)

	// Simulated upstream latency.
	time.Sleep(time.Duration(1+rng.Intn(4)) * time.Millisecond)

	result := pickOutcome(rng)
	consumed := 0
	if result == outcome.Success {
		consumed = estimate + rng.Intn(64)
	}
	_ = outcome.Report(pool, lease, result, consumed)

	switch result {
	case outcome.Success:
		stats.succeeded.Add(1)
		stats.tokens.Add(int64(consumed))
	case outcome.InfoFailure:
		stats.infoFails.Add(1)
	case outcome.KeyFailure:
		stats.strikes.Add(1)
	case outcome.Fatal:
		stats.fatals.Add(1)
	}
}

// pickOutcome draws from the configured outcome mix.
func pickOutcome(rng *rand.Rand) outcome.Outcome {
	r := rng.Float64()
	switch {
	case r < simulateFlags.fatalRate:
		return outcome.Fatal
	case r < simulateFlags.fatalRate+simulateFlags.failureRate:
		return outcome.KeyFailure
	case r < simulateFlags.fatalRate+simulateFlags.failureRate+0.05:
		return outcome.InfoFailure
	default:
		return outcome.Success
	}
}

// syntheticPrompt builds a prompt of 20 to 500 words.
func syntheticPrompt(rng *rand.Rand) string {
	words := 20 + rng.Intn(480)
	return strings.Repeat("lorem ", words)
}

func printSimulationReport(pool *keypool.Pool, tier keypool.Tier, stats *simStats, journal *audit.MemoryStore, dropped int64) {
	fmt.Println()
	fmt.Println("Results:")
	fmt.Println("--------")
	admitted := stats.admitted.Load()
	fmt.Printf("Admitted:     %d\n", admitted)
	fmt.Printf("  Succeeded:  %d (%d tokens)\n", stats.succeeded.Load(), stats.tokens.Load())
	fmt.Printf("  Info fails: %d\n", stats.infoFails.Load())
	fmt.Printf("  Strikes:    %d\n", stats.strikes.Load())
	fmt.Printf("  Fatal:      %d\n", stats.fatals.Load())
	fmt.Printf("Misses:       %d checkout attempts refused\n", stats.misses.Load())
	if starved := stats.starved.Load(); starved > 0 {
		fmt.Printf("Starved:      %d requests gave up after %d attempts\n", starved, maxAttemptsPerRequest)
	}

	fmt.Println()
	fmt.Println("Final pool state:")
	counts := map[keypool.State]int{}
	for _, status := range pool.Snapshot() {
		if status.Tier == tier {
			counts[status.State]++
		}
	}
	fmt.Printf("  available %d, cooling %d, retired %d\n",
		counts[keypool.StateAvailable], counts[keypool.StateCooling], counts[keypool.StateRetired])

	fmt.Println()
	fmt.Printf("Journal: %d events recorded, %d dropped\n", journal.Len(), dropped)
}
