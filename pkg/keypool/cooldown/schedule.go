package cooldown

import (
	"fmt"
	"time"
)

// Default escalation values. A first failure buys a short pause, each
// further consecutive failure a longer one, and at DefaultMaxStrikes
// the key is blocked for a full day.
const (
	DefaultMaxStrikes = 5
	DefaultHardBlock  = 24 * time.Hour
)

// DefaultSteps returns the default suspension ladder. Index i holds
// the suspension after strike i+1.
func DefaultSteps() []time.Duration {
	return []time.Duration{
		10 * time.Second,
		60 * time.Second,
		5 * time.Minute,
		1 * time.Hour,
	}
}

// Schedule maps a key's consecutive-strike count to a suspension
// duration. The zero value is not usable; construct with Default or
// populate all fields and call Validate.
type Schedule struct {
	// Steps is the suspension ladder: Steps[0] applies after the first
	// strike, Steps[1] after the second, and so on. Strike counts past
	// the end of the ladder (but below MaxStrikes) repeat the final step.
	Steps []time.Duration

	// MaxStrikes is the consecutive-strike count at which escalation
	// stops following Steps and the hard block applies instead.
	MaxStrikes int

	// HardBlock is the suspension applied at and beyond MaxStrikes.
	HardBlock time.Duration
}

// Default returns the standard schedule: 10s, 60s, 5m, 1h, then a
// 24-hour hard block at the fifth consecutive strike.
func Default() Schedule {
	return Schedule{
		Steps:      DefaultSteps(),
		MaxStrikes: DefaultMaxStrikes,
		HardBlock:  DefaultHardBlock,
	}
}

// Suspension returns the suspension duration for the given
// consecutive-strike count. Zero or negative counts return 0.
func (s Schedule) Suspension(strikes int) time.Duration {
	if strikes <= 0 {
		return 0
	}
	if strikes >= s.MaxStrikes {
		return s.HardBlock
	}
	if strikes <= len(s.Steps) {
		return s.Steps[strikes-1]
	}
	// Between the end of the ladder and the hard block threshold.
	return s.Steps[len(s.Steps)-1]
}

// Validate checks that the schedule is internally consistent.
func (s Schedule) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("escalation steps must not be empty")
	}
	for i, d := range s.Steps {
		if d <= 0 {
			return fmt.Errorf("escalation step %d must be positive, got %v", i+1, d)
		}
	}
	if s.MaxStrikes <= 0 {
		return fmt.Errorf("max strikes must be positive, got %d", s.MaxStrikes)
	}
	if s.HardBlock <= 0 {
		return fmt.Errorf("hard block duration must be positive, got %v", s.HardBlock)
	}
	return nil
}
