package retry

import (
	"sync"
	"time"
)

// OperationStats is a snapshot of retry outcomes for one operation label.
type OperationStats struct {
	// Calls is the number of Execute invocations.
	Calls int64

	// Successes and Failures partition terminal outcomes.
	Successes int64
	Failures  int64

	// Attempts is the total attempt count across all calls.
	Attempts int64

	// RetriedTime is the cumulative wall clock of calls that needed more
	// than one attempt, backoff sleeps included.
	RetriedTime time.Duration

	// FailureClasses counts terminal failures by classification.
	FailureClasses map[Class]int64
}

// Stats aggregates retry outcomes per operation label. It is mutated
// under lock by every retry-wrapped call and exposed as a read-only
// snapshot for reporting. The numbers are advisory.
type Stats struct {
	mu      sync.Mutex
	entries map[string]*OperationStats
}

// NewStats creates an empty aggregate.
func NewStats() *Stats {
	return &Stats{entries: make(map[string]*OperationStats)}
}

func (s *Stats) entry(label string) *OperationStats {
	e, ok := s.entries[label]
	if !ok {
		e = &OperationStats{FailureClasses: make(map[Class]int64)}
		s.entries[label] = e
	}

	return e
}

func (s *Stats) recordSuccess(label string, attempts int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(label)
	e.Calls++
	e.Successes++
	e.Attempts += int64(attempts)

	if attempts > 1 {
		e.RetriedTime += elapsed
	}
}

func (s *Stats) recordFailure(label string, attempts int, elapsed time.Duration, class Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(label)
	e.Calls++
	e.Failures++
	e.Attempts += int64(attempts)
	e.FailureClasses[class]++

	if attempts > 1 {
		e.RetriedTime += elapsed
	}
}

// Snapshot returns a deep copy of every label's counters.
func (s *Stats) Snapshot() map[string]OperationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]OperationStats, len(s.entries))

	for label, e := range s.entries {
		cp := *e
		cp.FailureClasses = make(map[Class]int64, len(e.FailureClasses))

		for c, n := range e.FailureClasses {
			cp.FailureClasses[c] = n
		}

		out[label] = cp
	}

	return out
}
