// Package store defines the aggregate persistence interface. The task
// subsystem defines its own store interface; the composite Store adds
// lifecycle management on top. Backends: Postgres, Bun, SQLite, Redis,
// Mongo, and Memory.
package store

import (
	"context"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Store is the aggregate persistence interface. A single backend
// implements the task store plus lifecycle.
type Store interface {
	task.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
