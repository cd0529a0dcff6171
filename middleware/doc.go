// Package middleware provides composable middleware for task execution.
//
// A [Middleware] is a function that wraps a work-unit handler. Middleware are
// composed into a chain using [Chain] and applied before each task executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// recover → logging → handler
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] — catches panics and converts them to task failures
//   - [Logging] — logs kind, owner, duration, and outcome at each execution
//   - [Timeout] — cancels the task context after its wall-clock deadline
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-task duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, t *task.Task, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
