// Package retry wraps fallible operations with bounded retries,
// exponential backoff, symmetric jitter, and pluggable classification of
// what counts as transient.
//
// A [Policy] is a stateless configuration value; one instance may be
// shared across any number of concurrent invocations. The [Engine]
// executes operations under a policy and aggregates per-operation
// statistics under lock.
//
// Classification runs in priority order: the explicit predicate, then
// the HTTP status-code allowlist, then the timeout class, then the
// connection-failure class, then known-transient text fragments.
// Anything unmatched is terminal and propagates immediately.
//
// Retried errors are invisible to the caller until attempts are
// exhausted; the error returned then is exactly the last attempt's
// error, unwrapped, so the root cause survives.
package retry
