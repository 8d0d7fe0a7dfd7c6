package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"workbench-hq/keywarden/pkg/telemetry/logging"
)

// Refresher reloads a key registry. *keypool.Pool satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// DefaultRefreshTimeout bounds a single scheduled reload.
const DefaultRefreshTimeout = 30 * time.Second

// SchedulerConfig configures the periodic refresh scheduler.
type SchedulerConfig struct {
	// Schedule is a cron expression ("*/5 * * * *") or an interval
	// descriptor ("@every 5m").
	Schedule string

	// Timeout bounds each reload. Default: 30s.
	Timeout time.Duration

	// Logger receives scheduling events. nil means no logging.
	Logger *logging.Logger
}

// Scheduler reloads the key registry on a cron schedule, picking up
// keys added or reset out-of-band.
type Scheduler struct {
	refresher Refresher
	schedule  string
	timeout   time.Duration
	cron      *cron.Cron
	logger    *logging.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. Start must be called to begin
// reloading.
func NewScheduler(refresher Refresher, cfg SchedulerConfig) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		refresher: refresher,
		schedule:  cfg.Schedule,
		timeout:   cfg.Timeout,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start validates the schedule and begins periodic reloads.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("refresh scheduler already running")
	}
	if s.schedule == "" {
		return fmt.Errorf("refresh schedule is empty")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("refresh scheduler started",
		"schedule", s.schedule,
		"timeout", s.timeout.String(),
	)
	return nil
}

// run executes one reload with the configured timeout.
func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}
	s.logger.Debug("scheduled refresh completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop halts scheduling and waits for a running reload to finish.
// Stop is safe to call on a scheduler that never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("refresh scheduler stopped")
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled reload time, or nil when the
// scheduler is not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
