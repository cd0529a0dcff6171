// Package observability provides an OpenTelemetry-based metrics extension
// for Vedfolnir. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for task admission, completion, failure, and
// cancellation, plus a histogram of execution time.
//
// For per-execution tracing and metrics with kind/status attributes, see
// the middleware package: middleware.Tracing() and middleware.Metrics().
package observability
