package ratelimit

import (
	"math"
	"time"
)

// infWait is returned by waitFor when the bucket can never refill at its
// current slope. WaitIfNeeded turns it into ErrWaitBudgetExceeded.
const infWait = time.Duration(math.MaxInt64)

// bucketState is the mutable part of a bucket: a token count and the
// instant it was last brought current. Everything else about refill is a
// pure function of this pair and the clock.
type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// refilled advances s from its last-refill instant to now, adding
// elapsed×perSecond tokens and saturating at capacity. It never mutates
// its input. A clock that moved backwards keeps the token count and
// re-anchors the refill mark.
func refilled(s bucketState, capacity, perSecond float64, now time.Time) bucketState {
	if !now.After(s.lastRefill) {
		return bucketState{tokens: s.tokens, lastRefill: now}
	}

	tokens := s.tokens + now.Sub(s.lastRefill).Seconds()*perSecond
	if tokens > capacity {
		tokens = capacity
	}

	return bucketState{tokens: tokens, lastRefill: now}
}

// bucket is a single token bucket. Access is serialized by the owning
// Limiter's mutex; bucket itself holds no lock.
type bucket struct {
	capacity  float64
	perSecond float64
	state     bucketState
}

// newBucket returns a bucket that starts full.
func newBucket(r Rate, now time.Time) *bucket {
	return &bucket{
		capacity:  float64(r.Capacity),
		perSecond: r.PerSecond,
		state:     bucketState{tokens: float64(r.Capacity), lastRefill: now},
	}
}

// advance brings the bucket current as of now.
func (b *bucket) advance(now time.Time) {
	b.state = refilled(b.state, b.capacity, b.perSecond, now)
}

// waitFor reports how long until n tokens are available, assuming the
// bucket was just advanced. Zero means n tokens are available now.
func (b *bucket) waitFor(n float64) time.Duration {
	if b.state.tokens >= n {
		return 0
	}

	if b.perSecond <= 0 {
		return infWait
	}

	deficit := n - b.state.tokens

	return time.Duration(deficit / b.perSecond * float64(time.Second))
}

// take consumes n tokens. The caller must have verified availability via
// waitFor under the same lock acquisition.
func (b *bucket) take(n float64) {
	b.state.tokens -= n
	if b.state.tokens < 0 {
		b.state.tokens = 0
	}
}
