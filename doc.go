// Package vedfolnir provides the task-orchestration core of Vedfolnir, an
// accessibility automation system for the Fediverse. It offers a
// single-task-per-owner work queue, a multi-dimensional rate limiter, a
// classified retry engine, and a background dispatch loop that drives
// long-running caption work against remote platform APIs.
//
// The core is designed as a library, not a service. Import it, configure a
// store, register work kinds, and drive it through the engine package.
//
// # Quick Start
//
//	orc, err := vedfolnir.New(
//	    vedfolnir.WithStore(pgStore),
//	    vedfolnir.WithConcurrency(4),
//	)
//
// # Architecture
//
// The queue, limiter, and retry engine are explicitly constructed and
// dependency-injected; there is no ambient global state. Work units compose
// the pieces themselves: wait for rate-limit admission, then execute the
// remote call under a retry policy. Control flow and failure points stay
// visible in the work unit rather than hidden behind decorators.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package vedfolnir
