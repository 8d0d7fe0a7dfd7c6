package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================
// Test helpers
// ============================================================

// fakeRefresher counts Refresh calls and optionally fails.
type fakeRefresher struct {
	calls atomic.Int32
	err   atomic.Value // error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	if err, ok := f.err.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (f *fakeRefresher) callCount() int {
	return int(f.calls.Load())
}

// waitForCalls polls until the refresher has seen at least n calls or
// the deadline passes.
func waitForCalls(t *testing.T, f *fakeRefresher, n int, deadline time.Duration) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if f.callCount() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("refresher saw %d calls, want >= %d within %s", f.callCount(), n, deadline)
}

// ============================================================
// Start validation
// ============================================================

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "standard five-field expression",
			schedule:    "*/5 * * * *",
			wantRunning: true,
			wantError:   false,
		},
		{
			name:        "interval descriptor",
			schedule:    "@every 5m",
			wantRunning: true,
			wantError:   false,
		},
		{
			name:        "hourly descriptor",
			schedule:    "@hourly",
			wantRunning: true,
			wantError:   false,
		},
		{
			name:        "empty schedule",
			schedule:    "",
			wantRunning: false,
			wantError:   true,
		},
		{
			name:        "garbage expression",
			schedule:    "not a cron line",
			wantRunning: false,
			wantError:   true,
		},
		{
			name:        "six fields rejected",
			schedule:    "0 0 3 * * *",
			wantRunning: false,
			wantError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
				Schedule: tt.schedule,
			})

			err := scheduler.Start()
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}

			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v",
					scheduler.IsRunning(), tt.wantRunning)
			}

			scheduler.Stop()

			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
		Schedule: "@hourly",
	})
	defer scheduler.Stop()

	if err := scheduler.Start(); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}

	if err := scheduler.Start(); err == nil {
		t.Error("second Start() error = nil, want error")
	}
}

func TestScheduler_DefaultTimeout(t *testing.T) {
	scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
		Schedule: "@hourly",
	})

	if scheduler.timeout != DefaultRefreshTimeout {
		t.Errorf("timeout = %v, want %v", scheduler.timeout, DefaultRefreshTimeout)
	}
}

// ============================================================
// NextRun
// ============================================================

func TestScheduler_NextRun(t *testing.T) {
	scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
		Schedule: "0 3 * * *",
	})

	if next := scheduler.NextRun(); next != nil {
		t.Errorf("NextRun() before start = %v, want nil", next)
	}

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	next := scheduler.NextRun()
	if next == nil {
		t.Fatal("NextRun() after start returned nil")
	}
	if !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, want time in future", next)
	}
}

func TestScheduler_NextRunNilAfterStop(t *testing.T) {
	scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
		Schedule: "@hourly",
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	scheduler.Stop()

	if next := scheduler.NextRun(); next != nil {
		t.Errorf("NextRun() after Stop() = %v, want nil", next)
	}
}

// ============================================================
// Firing
// ============================================================

func TestScheduler_FiresOnSchedule(t *testing.T) {
	refresher := &fakeRefresher{}
	scheduler := NewScheduler(refresher, SchedulerConfig{
		Schedule: "@every 100ms",
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	waitForCalls(t, refresher, 2, 2*time.Second)
}

func TestScheduler_KeepsFiringAfterRefreshError(t *testing.T) {
	refresher := &fakeRefresher{}
	refresher.err.Store(errors.New("registry load failed"))

	scheduler := NewScheduler(refresher, SchedulerConfig{
		Schedule: "@every 100ms",
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer scheduler.Stop()

	// A failing reload must not unhook the schedule.
	waitForCalls(t, refresher, 3, 2*time.Second)
}

// ============================================================
// Stop semantics
// ============================================================

func TestScheduler_StopNeverStarted(t *testing.T) {
	scheduler := NewScheduler(&fakeRefresher{}, SchedulerConfig{
		Schedule: "@hourly",
	})

	// Must not panic or block.
	scheduler.Stop()
	scheduler.Stop()

	if scheduler.IsRunning() {
		t.Error("IsRunning() = true for scheduler that never started")
	}
}

func TestScheduler_StopHaltsFiring(t *testing.T) {
	refresher := &fakeRefresher{}
	scheduler := NewScheduler(refresher, SchedulerConfig{
		Schedule: "@every 50ms",
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	waitForCalls(t, refresher, 1, 2*time.Second)
	scheduler.Stop()

	quiesced := refresher.callCount()
	time.Sleep(200 * time.Millisecond)

	if got := refresher.callCount(); got != quiesced {
		t.Errorf("refresher called %d times after Stop(), had %d at Stop()", got, quiesced)
	}
}
