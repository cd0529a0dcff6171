package vedfolnir

import (
	"fmt"
	"time"
)

// Config holds configuration for the Orchestrator.
type Config struct {
	// Concurrency is the maximum number of tasks executing at once.
	Concurrency int

	// PollInterval is how long a dispatch worker sleeps when no task is
	// ready to claim.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for running tasks to
	// drain during Stop.
	ShutdownTimeout time.Duration

	// DefaultTaskTimeout bounds a task's total wall clock, covering
	// rate-limit waits and retry backoff as well as the work itself.
	// Retry sleeps and limiter waits compound; the deadline keeps the
	// combination finite. Tasks may override it per enqueue. Zero means
	// no deadline.
	DefaultTaskTimeout time.Duration

	// ClaimRatePerSecond caps how often the pool asks the store for a
	// ready task, shared across all workers. Zero disables the cap.
	ClaimRatePerSecond float64

	// ClaimBurst is the burst allowance for the claim governor.
	ClaimBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		PollInterval:       1 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		DefaultTaskTimeout: 30 * time.Minute,
		ClaimRatePerSecond: 20,
		ClaimBurst:         5,
	}
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("vedfolnir: config: Concurrency must be >= 1, got %d", c.Concurrency)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("vedfolnir: config: PollInterval must be positive, got %s", c.PollInterval)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("vedfolnir: config: ShutdownTimeout must not be negative, got %s", c.ShutdownTimeout)
	}

	if c.DefaultTaskTimeout < 0 {
		return fmt.Errorf("vedfolnir: config: DefaultTaskTimeout must not be negative, got %s", c.DefaultTaskTimeout)
	}

	if c.ClaimRatePerSecond < 0 {
		return fmt.Errorf("vedfolnir: config: ClaimRatePerSecond must not be negative, got %g", c.ClaimRatePerSecond)
	}

	if c.ClaimBurst < 0 {
		return fmt.Errorf("vedfolnir: config: ClaimBurst must not be negative, got %d", c.ClaimBurst)
	}

	return nil
}
