package vedfolnir

import (
	"context"
	"log/slog"
	"time"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for dispatch pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// janitorRunner is an internal interface for the maintenance janitor.
type janitorRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook shutdown.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for caption task processing:
// it owns the configuration, the store lifecycle, the dispatch pool,
// and the maintenance janitor.
//
// Create one with New() and functional options. The Orchestrator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build() to wire everything together.
type Orchestrator struct {
	config  Config
	logger  *slog.Logger
	store   Storer
	hooks   hookEmitter
	pool    poolRunner
	janitor janitorRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetPool sets the dispatch pool (called by engine.Build).
func (o *Orchestrator) SetPool(p poolRunner) { o.pool = p }

// SetJanitor sets the maintenance janitor (called by engine.Build).
func (o *Orchestrator) SetJanitor(j janitorRunner) { o.janitor = j }

// SetHooks sets the hook emitter (called by engine.Build).
func (o *Orchestrator) SetHooks(h hookEmitter) { o.hooks = h }

// Start begins task processing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.pool == nil {
		return ErrNotBuilt
	}

	if err := o.pool.Start(ctx); err != nil {
		return err
	}

	if o.janitor != nil {
		if err := o.janitor.Start(ctx); err != nil {
			return err
		}
	}

	o.started = true

	return nil
}

// Stop gracefully shuts down the orchestrator: it drains the pool,
// stops the janitor, notifies hooks, and closes the store.
//
// If ctx carries no deadline, Config.ShutdownTimeout bounds the wait.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && o.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.ShutdownTimeout)
		defer cancel()
	}

	if o.janitor != nil && o.started {
		if err := o.janitor.Stop(ctx); err != nil {
			o.logger.Error("janitor stop error", "error", err)
		}
	}

	if o.pool != nil && o.started {
		if err := o.pool.Stop(ctx); err != nil {
			o.logger.Error("pool stop error", "error", err)
		}
	}

	if o.hooks != nil {
		o.hooks.EmitShutdown(ctx)
	}

	if o.store != nil {
		return o.store.Close()
	}

	return nil
}

// WithConcurrency sets the maximum number of concurrent task executions.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets the idle sleep between claim attempts.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.PollInterval = d
		return nil
	}
}

// WithDefaultTaskTimeout sets the default per-task wall-clock deadline.
func WithDefaultTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.DefaultTaskTimeout = d
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithConfig replaces the entire configuration. Apply it before other
// config-touching options or they will be overwritten.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) error {
		o.config = c
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds the task store interface.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}
