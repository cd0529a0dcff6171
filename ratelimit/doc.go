// Package ratelimit implements token-bucket admission control across four
// independent dimensions: global, per operation class, per target, and per
// target+operation. A single admission must pass every applicable bucket
// at once; on success exactly one token is consumed from each, on failure
// none (all-or-nothing, so a request cannot succeed on one axis while
// violating another).
//
// Buckets refill lazily: token counts are a pure function of elapsed
// wall-clock time, recomputed at check time. There is no refill timer,
// which keeps bucket state deterministic and trivially testable.
//
// Remote systems report their own quota state in response headers. Feed a
// normalized (remaining, reset-at) pair to [Limiter.UpdateFromFeedback]
// and the matching bucket's token count and refill slope are overwritten
// to track reality — the server's counters are ground truth, the local
// bucket only a predictive model that must not drift. Header parsing for
// the various conventions lives in package platform.
//
// The limiter is explicitly constructed and passed to its callers. It is
// safe for concurrent use.
package ratelimit
