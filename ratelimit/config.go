package ratelimit

import (
	"fmt"
	"time"
)

// Rate describes one bucket's parameters.
type Rate struct {
	// Capacity is the maximum number of tokens the bucket holds. A full
	// bucket admits a burst of this size.
	Capacity int

	// PerSecond is the sustained refill rate in tokens per second.
	PerSecond float64
}

// Config holds per-dimension bucket parameters. Buckets are created
// lazily on first reference to a dimension key and keep their Rate for
// the process lifetime unless overwritten by server feedback.
type Config struct {
	// Global applies to every admission regardless of dimensions.
	Global Rate

	// PerOperation is the default Rate for operation-class buckets.
	PerOperation Rate

	// Operations overrides PerOperation for specific operation classes,
	// e.g. a tighter budget for "media.update" than "statuses.list".
	Operations map[string]Rate

	// PerTarget is the default Rate for target buckets. A target is one
	// remote system, e.g. a Mastodon instance domain.
	PerTarget Rate

	// PerTargetOperation is the default Rate for combined
	// target+operation buckets.
	PerTargetOperation Rate

	// MaxWait is the default ceiling for WaitIfNeeded. An admission whose
	// quoted wait would exceed it fails softly with
	// ErrWaitBudgetExceeded. Zero means no ceiling.
	MaxWait time.Duration
}

// DefaultConfig returns a Config tuned for Fediverse instance APIs:
// roughly one sustained request per second per instance (Mastodon's
// documented 300 per 5 minutes), with small bursts, under a looser
// process-wide cap.
func DefaultConfig() Config {
	return Config{
		Global:             Rate{Capacity: 50, PerSecond: 10},
		PerOperation:       Rate{Capacity: 20, PerSecond: 5},
		PerTarget:          Rate{Capacity: 15, PerSecond: 1},
		PerTargetOperation: Rate{Capacity: 5, PerSecond: 0.5},
		MaxWait:            30 * time.Second,
	}
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	named := []struct {
		name string
		rate Rate
	}{
		{"Global", c.Global},
		{"PerOperation", c.PerOperation},
		{"PerTarget", c.PerTarget},
		{"PerTargetOperation", c.PerTargetOperation},
	}

	for _, n := range named {
		if err := n.rate.validate(); err != nil {
			return fmt.Errorf("ratelimit: config: %s: %w", n.name, err)
		}
	}

	for op, r := range c.Operations {
		if err := r.validate(); err != nil {
			return fmt.Errorf("ratelimit: config: Operations[%q]: %w", op, err)
		}
	}

	if c.MaxWait < 0 {
		return fmt.Errorf("ratelimit: config: MaxWait must not be negative, got %s", c.MaxWait)
	}

	return nil
}

func (r Rate) validate() error {
	if r.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", r.Capacity)
	}

	if r.PerSecond <= 0 {
		return fmt.Errorf("refill rate must be positive, got %g", r.PerSecond)
	}

	return nil
}
