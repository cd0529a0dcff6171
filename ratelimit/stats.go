package ratelimit

import (
	"sync"
	"time"
)

// Counters is a snapshot of admission counters for one dimension set.
type Counters struct {
	// Admitted counts calls that were admitted, immediately or after
	// waiting.
	Admitted int64

	// Throttled counts calls that were not admitted on their first
	// probe, whether they were eventually admitted or gave up.
	Throttled int64

	// Rejected counts calls that gave up because the quoted wait
	// exceeded the budget.
	Rejected int64

	// TotalWait is the cumulative time callers spent suspended.
	TotalWait time.Duration
}

// AverageWait is the mean suspension time across throttled calls.
func (c Counters) AverageWait() time.Duration {
	if c.Throttled == 0 {
		return 0
	}

	return c.TotalWait / time.Duration(c.Throttled)
}

// stats accumulates advisory per-dimension counters under its own lock,
// so reporting never contends with admission.
type stats struct {
	mu      sync.Mutex
	entries map[Dimensions]*Counters
}

func newStats() stats {
	return stats{entries: make(map[Dimensions]*Counters)}
}

func (s *stats) entry(d Dimensions) *Counters {
	c, ok := s.entries[d]
	if !ok {
		c = &Counters{}
		s.entries[d] = c
	}

	return c
}

func (s *stats) recordAdmitted(d Dimensions, waited time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.entry(d)
	c.Admitted++
	c.TotalWait += waited
}

func (s *stats) recordThrottled(d Dimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(d).Throttled++
}

func (s *stats) recordRejected(d Dimensions, waited time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.entry(d)
	c.Throttled++
	c.Rejected++
	c.TotalWait += waited
}

func (s *stats) snapshot() map[Dimensions]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Dimensions]Counters, len(s.entries))
	for d, c := range s.entries {
		out[d] = *c
	}

	return out
}
