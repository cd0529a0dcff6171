package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrWaitBudgetExceeded signals that admission would require waiting
// longer than the allowed ceiling. It is a soft signal: callers are
// expected to back off or abandon the call, never treat it as a hard
// failure.
var ErrWaitBudgetExceeded = errors.New("ratelimit: admission would exceed wait budget")

// Dimensions identifies the buckets an admission must pass. The zero
// value addresses only the global bucket.
type Dimensions struct {
	// Target is the remote system being called, e.g. an instance domain.
	Target string

	// Operation is the operation class, e.g. "statuses.list".
	Operation string
}

// bucketKey addresses one bucket in the limiter's lazy map. The four
// dimension kinds map onto which fields are set: neither (global), one,
// or both.
type bucketKey struct {
	target    string
	operation string
}

// applicableKeys returns every bucket key an admission with dims must
// pass, global first.
func applicableKeys(d Dimensions) []bucketKey {
	keys := make([]bucketKey, 0, 4)
	keys = append(keys, bucketKey{})

	if d.Operation != "" {
		keys = append(keys, bucketKey{operation: d.Operation})
	}

	if d.Target != "" {
		keys = append(keys, bucketKey{target: d.Target})
	}

	if d.Target != "" && d.Operation != "" {
		keys = append(keys, bucketKey{target: d.Target, operation: d.Operation})
	}

	return keys
}

// mostSpecificKey returns the narrowest bucket key for dims. Server
// feedback lands there: the reported quota belongs to the exact scope
// the request was made under.
func mostSpecificKey(d Dimensions) bucketKey {
	switch {
	case d.Target != "" && d.Operation != "":
		return bucketKey{target: d.Target, operation: d.Operation}
	case d.Target != "":
		return bucketKey{target: d.Target}
	case d.Operation != "":
		return bucketKey{operation: d.Operation}
	default:
		return bucketKey{}
	}
}

// Limiter is a multi-dimensional token-bucket admission controller.
// It is safe for concurrent use. Construct one with New and pass it
// explicitly to every caller path; there is no package-level instance.
type Limiter struct {
	cfg    Config
	logger *slog.Logger

	// mu guards the bucket map and every bucket in it. One lock per
	// component keeps limiter admission independent of queue and stats
	// locking.
	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	stats stats
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(lim *Limiter) {
		lim.logger = l
	}
}

// New creates a Limiter with the given per-dimension configuration.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:     cfg,
		logger:  slog.Default(),
		buckets: make(map[bucketKey]*bucket),
		stats:   newStats(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// rateFor returns the configured Rate for a bucket key.
func (l *Limiter) rateFor(k bucketKey) Rate {
	switch {
	case k.target != "" && k.operation != "":
		return l.cfg.PerTargetOperation
	case k.target != "":
		return l.cfg.PerTarget
	case k.operation != "":
		if r, ok := l.cfg.Operations[k.operation]; ok {
			return r
		}

		return l.cfg.PerOperation
	default:
		return l.cfg.Global
	}
}

// bucketFor returns the bucket for k, creating it full on first
// reference. Caller holds l.mu.
func (l *Limiter) bucketFor(k bucketKey, now time.Time) *bucket {
	b, ok := l.buckets[k]
	if !ok {
		b = newBucket(l.rateFor(k), now)
		l.buckets[k] = b
	}

	return b
}

// Check attempts to admit one request across every applicable bucket.
// On admission it consumes exactly one token from each bucket and
// returns (true, 0). If any bucket lacks a token, no tokens are consumed
// anywhere and the returned wait is the worst bucket's time to its next
// token.
func (l *Limiter) Check(dims Dimensions) (bool, time.Duration) {
	allowed, wait := l.checkAt(dims, time.Now())
	if allowed {
		l.stats.recordAdmitted(dims, 0)
	} else {
		l.stats.recordThrottled(dims)
	}

	return allowed, wait
}

// checkAt is Check at an explicit instant, without stats. All-or-nothing
// admission: waits are quoted for every applicable bucket first, tokens
// are consumed only when all of them are zero.
func (l *Limiter) checkAt(dims Dimensions, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := applicableKeys(dims)

	var wait time.Duration

	for _, k := range keys {
		b := l.bucketFor(k, now)
		b.advance(now)

		if w := b.waitFor(1); w > wait {
			wait = w
		}
	}

	if wait > 0 {
		return false, wait
	}

	for _, k := range keys {
		l.buckets[k].take(1)
	}

	return true, 0
}

// WaitIfNeeded blocks until the request is admitted on every applicable
// bucket, using the configured MaxWait ceiling. It returns how long the
// caller was suspended. When the quoted wait would push the total past
// the ceiling it returns ErrWaitBudgetExceeded without consuming
// anything; ctx cancellation aborts the suspension with ctx's error.
func (l *Limiter) WaitIfNeeded(ctx context.Context, dims Dimensions) (time.Duration, error) {
	return l.WaitMax(ctx, dims, l.cfg.MaxWait)
}

// WaitMax is WaitIfNeeded with an explicit ceiling. A zero ceiling means
// no ceiling.
func (l *Limiter) WaitMax(ctx context.Context, dims Dimensions, maxWait time.Duration) (time.Duration, error) {
	start := time.Now()
	throttled := false

	for {
		allowed, wait := l.checkAt(dims, time.Now())
		if allowed {
			waited := time.Since(start)
			if throttled {
				l.stats.recordThrottled(dims)
			}

			l.stats.recordAdmitted(dims, waited)

			return waited, nil
		}

		throttled = true
		waited := time.Since(start)

		if wait >= infWait || (maxWait > 0 && waited+wait > maxWait) {
			l.stats.recordRejected(dims, waited)
			l.logger.Debug("rate limit wait budget exceeded",
				slog.String("target", dims.Target),
				slog.String("operation", dims.Operation),
				slog.Duration("quoted_wait", wait),
				slog.Duration("max_wait", maxWait),
			)

			return waited, ErrWaitBudgetExceeded
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Feedback carries an authoritative quota report from a downstream
// response: how many requests remain in the current window and when the
// window resets. Adapters in package platform normalize the various
// header conventions into this shape.
type Feedback struct {
	Remaining int
	ResetAt   time.Time
}

// UpdateFromFeedback overwrites the most specific bucket for dims with
// server-reported quota state: the token count becomes Remaining and the
// refill slope is recomputed so the bucket reaches capacity at ResetAt.
// Applying the same feedback twice is idempotent. Tokens never exceed
// capacity; a report above the modeled capacity grows the bucket.
func (l *Limiter) UpdateFromFeedback(dims Dimensions, fb Feedback) {
	l.applyFeedbackAt(dims, fb, time.Now())
}

func (l *Limiter) applyFeedbackAt(dims Dimensions, fb Feedback, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := mostSpecificKey(dims)
	b := l.bucketFor(k, now)

	tokens := float64(fb.Remaining)
	if tokens < 0 {
		tokens = 0
	}

	if tokens > b.capacity {
		// The server reports a looser limit than modeled.
		b.capacity = tokens
	}

	b.state = bucketState{tokens: tokens, lastRefill: now}

	slope := 0.0
	if fb.ResetAt.After(now) {
		slope = (b.capacity - tokens) / fb.ResetAt.Sub(now).Seconds()
	}

	if slope > 0 {
		b.perSecond = slope
	} else {
		// Reset already passed, or the window is full: fall back to the
		// configured slope so the bucket keeps refilling after use.
		b.perSecond = l.rateFor(k).PerSecond
	}

	l.logger.Debug("rate limit feedback applied",
		slog.String("target", dims.Target),
		slog.String("operation", dims.Operation),
		slog.Int("remaining", fb.Remaining),
		slog.Time("reset_at", fb.ResetAt),
	)
}

// Stats returns a snapshot of per-dimension admission counters. The
// numbers are advisory and never influence admission.
func (l *Limiter) Stats() map[Dimensions]Counters {
	return l.stats.snapshot()
}
