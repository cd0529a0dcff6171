package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// migration is one named schema step. Steps run in order, and each is
// recorded in vedfolnir_migrations so reruns skip it. The schema is the
// same one the pgx backend manages; both can point at the same database.
type migration struct {
	name  string
	stmts []string
}

var migrations = []migration{
	// The partial unique index on owner_id is what enforces the
	// one-active-task-per-owner rule: a second queued or running task for
	// the same owner fails the insert with a unique_violation.
	{
		name: "001_create_tasks",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS vedfolnir_tasks (
				id               TEXT PRIMARY KEY,
				owner_id         TEXT NOT NULL,
				kind             TEXT NOT NULL,
				payload          BYTEA,
				status           TEXT NOT NULL DEFAULT 'queued',
				priority         INTEGER NOT NULL DEFAULT 0,
				progress_percent INTEGER NOT NULL DEFAULT 0,
				progress_message TEXT NOT NULL DEFAULT '',
				error_message    TEXT NOT NULL DEFAULT '',
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				worker_id        TEXT NOT NULL DEFAULT '',
				started_at       TIMESTAMPTZ,
				ended_at         TIMESTAMPTZ,
				timeout          BIGINT NOT NULL DEFAULT 0,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,

			`CREATE UNIQUE INDEX IF NOT EXISTS vedfolnir_tasks_owner_active
				ON vedfolnir_tasks (owner_id)
				WHERE status IN ('queued', 'running')`,

			`CREATE INDEX IF NOT EXISTS idx_vedfolnir_tasks_claim
				ON vedfolnir_tasks (priority DESC, created_at ASC)
				WHERE status = 'queued'`,

			`CREATE INDEX IF NOT EXISTS idx_vedfolnir_tasks_owner
				ON vedfolnir_tasks (owner_id, created_at DESC)`,

			`CREATE INDEX IF NOT EXISTS idx_vedfolnir_tasks_retention
				ON vedfolnir_tasks (ended_at)
				WHERE status IN ('completed', 'failed', 'cancelled')`,
		},
	},
}

// Store is a Bun ORM implementation of store.Store using PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate runs all schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	// Create migrations tracking table.
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vedfolnir_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("vedfolnir/bun: create migrations table: %w", err)
	}

	for _, m := range migrations {
		// Check if already applied.
		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM vedfolnir_migrations WHERE name = ?)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("vedfolnir/bun: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		for _, stmt := range m.stmts {
			if _, execErr := s.db.ExecContext(ctx, stmt); execErr != nil {
				return fmt.Errorf("vedfolnir/bun: execute migration %s: %w", m.name, execErr)
			}
		}

		// Record migration.
		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO vedfolnir_migrations (name) VALUES (?)`,
			m.name,
		)
		if recErr != nil {
			return fmt.Errorf("vedfolnir/bun: record migration %s: %w", m.name, recErr)
		}

		s.logger.Info("applied migration", "name", m.name)
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
