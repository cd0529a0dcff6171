package retry

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/backoff"
)

// Policy configures bounded, classified retrying. It is stateless; one
// instance may be shared across many concurrent invocations.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first call
	// included. Must be at least 1.
	MaxAttempts int

	// BaseDelay is the pre-jitter delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the pre-jitter delay. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier grows the delay each attempt: delay(n) is
	// BaseDelay × Multiplier^(n-1), capped at MaxDelay.
	Multiplier float64

	// JitterFraction applies symmetric random jitter of ± this fraction
	// to every delay, de-synchronizing concurrent retriers. Must be in
	// [0, 1).
	JitterFraction float64

	// Budget bounds the total wall clock across all attempts, backoff
	// sleeps included. Zero means no ceiling beyond ctx.
	Budget time.Duration

	// Retryable, when set, is the explicit allowlist predicate consulted
	// before any other classification. Returning true marks the error
	// transient.
	Retryable func(error) bool

	// RetryableStatusCodes is the HTTP status-code allowlist. Errors
	// carrying one of these codes (via a StatusCode() int method
	// anywhere in the wrap chain) are transient.
	RetryableStatusCodes []int

	// RetryTimeouts marks timeout-class errors transient.
	RetryTimeouts bool

	// RetryConnectionErrors marks connection-failure-class errors
	// transient.
	RetryConnectionErrors bool

	// TransientFragments marks errors whose text contains any of these
	// substrings transient. Checked last.
	TransientFragments []string
}

// DefaultStatusCodes is the retryable status set applied by
// DefaultPolicy: too many requests plus the transient server errors.
func DefaultStatusCodes() []int {
	return []int{429, 500, 502, 503, 504}
}

// DefaultPolicy returns a Policy suited to remote platform APIs: three
// attempts, exponential backoff from one second, ±10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:           3,
		BaseDelay:             1 * time.Second,
		MaxDelay:              30 * time.Second,
		Multiplier:            2,
		JitterFraction:        0.1,
		RetryableStatusCodes:  DefaultStatusCodes(),
		RetryTimeouts:         true,
		RetryConnectionErrors: true,
		TransientFragments: []string{
			"temporarily unavailable",
			"connection reset by peer",
			"too many requests",
		},
	}
}

// Validate reports the first invalid field, if any.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: policy: MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}

	if p.BaseDelay < 0 {
		return fmt.Errorf("retry: policy: BaseDelay must not be negative, got %s", p.BaseDelay)
	}

	if p.MaxDelay < 0 {
		return fmt.Errorf("retry: policy: MaxDelay must not be negative, got %s", p.MaxDelay)
	}

	if p.Multiplier < 1 {
		return fmt.Errorf("retry: policy: Multiplier must be >= 1, got %g", p.Multiplier)
	}

	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("retry: policy: JitterFraction must be in [0, 1), got %g", p.JitterFraction)
	}

	if p.Budget < 0 {
		return fmt.Errorf("retry: policy: Budget must not be negative, got %s", p.Budget)
	}

	return nil
}

// Delay returns the pre-jitter delay after failed attempt n (1-indexed):
// min(MaxDelay, BaseDelay × Multiplier^(n-1)).
func (p Policy) Delay(attempt int) time.Duration {
	s := backoff.Exponential{Initial: p.BaseDelay, Max: p.MaxDelay, Multiplier: p.Multiplier}

	return s.Delay(attempt)
}

// jittered applies symmetric ±JitterFraction jitter to d.
func (p Policy) jittered(d time.Duration) time.Duration {
	if p.JitterFraction <= 0 || d <= 0 {
		return d
	}

	// Uniform in [-fraction, +fraction].
	offset := (rand.Float64()*2 - 1) * p.JitterFraction //nolint:gosec // jitter intentionally uses non-crypto rand

	return time.Duration(float64(d) * (1 + offset))
}
