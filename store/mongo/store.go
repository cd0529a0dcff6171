package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store"
)

// colTasks is the task collection name.
const colTasks = "vedfolnir_tasks"

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using the MongoDB driver. The caller owns
// the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
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

// New creates a new MongoDB store. The caller owns the client lifecycle --
// the Store will not disconnect it on Close().
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the task collection indexes. The partial unique index
// on owner_id (filtered to active documents) is what enforces the
// one-active-task-per-owner rule.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongod.IndexModel{
		// Owner exclusivity: at most one active document per owner.
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		// Claim index: queued tasks by priority DESC, created_at ASC.
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "priority", Value: -1},
			{Key: "created_at", Value: 1},
		}},
		// Owner history.
		{Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		// Retention sweep.
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "ended_at", Value: 1},
		}},
	}

	if _, err := s.db.Collection(colTasks).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("vedfolnir/mongo: migrate %s indexes: %w", colTasks, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// isOwnerConflict reports whether a duplicate key error came from the
// partial unique owner index rather than the _id index.
func isOwnerConflict(err error) bool {
	return isDuplicateKey(err) && strings.Contains(err.Error(), "owner_id")
}
