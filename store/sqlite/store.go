package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the sqlite database/sql driver

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store"
)

// Ensure Store implements the composite interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store using database/sql.
// Claiming relies on SQLite's database-level write lock: an UPDATE with a
// subselect runs as one statement, so two workers can never take the same
// row.
type Store struct {
	db     *sql.DB
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

// New creates a new SQLite store. The caller owns the db lifecycle -- the
// Store will not close it on Close().
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs all schema migrations in order. Each step is recorded so
// that running Migrate again is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vedfolnir_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("vedfolnir/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM vedfolnir_migrations WHERE name = ?)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("vedfolnir/sqlite: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		for _, stmt := range m.stmts {
			if _, execErr := s.db.ExecContext(ctx, stmt); execErr != nil {
				return fmt.Errorf("vedfolnir/sqlite: execute migration %s: %w", m.name, execErr)
			}
		}

		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO vedfolnir_migrations (name, applied_at) VALUES (?, ?)`,
			m.name, formatTime(time.Now()),
		)
		if recErr != nil {
			return fmt.Errorf("vedfolnir/sqlite: record migration %s: %w", m.name, recErr)
		}

		s.logger.Info("applied migration", "name", m.name)
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *sql.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// timeLayout is the canonical column format for timestamps. The
// fixed-width fraction keeps TEXT timestamps lexicographically ordered,
// which ORDER BY and the retention cutoff compare rely on.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// formatTime renders a timestamp in the canonical column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullableTime renders an optional timestamp, mapping nil to SQL NULL.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime parses a timestamp column value.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isConstraint checks if err is a unique violation involving the named
// column. SQLite spells the violated columns out in the error message,
// not the index name.
func isConstraint(err error, column string) bool {
	return isDuplicateKey(err) && strings.Contains(err.Error(), column)
}
