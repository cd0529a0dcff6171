// Package engine wires all Vedfolnir subsystems together. It creates
// the hook registry, work registry, queue service, rate limiter, retry
// engine, middleware chain, dispatch pool, and janitor, and provides
// the Register/Enqueue operations.
//
// This package exists to break the import cycle: the root vedfolnir
// package defines Entity (imported by task, queue, etc.) and so cannot
// import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/maintenance"
	mw "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/middleware"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/observability"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/retry"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

// Engine wraps an Orchestrator with typed subsystem access.
// Use Build() to create one from an Orchestrator.
type Engine struct {
	orc      *vedfolnir.Orchestrator
	hooks    *hook.Registry
	registry *worker.Registry
	queue    *queue.Service
	limiter  *ratelimit.Limiter
	retrier  *retry.Engine
	pool     *worker.Pool
	janitor  *maintenance.Janitor
	mws      []mw.Middleware
	logger   *slog.Logger

	limiterCfg  ratelimit.Config
	janitorOpts []maintenance.Option

	// defaults holds per-kind enqueue baselines captured at Register.
	defaultsMu sync.RWMutex
	defaults   map[string]task.Options

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

var _ maintenance.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) {
		eng.hooks.Register(e)
	}
}

// WithMiddleware appends middleware to the engine's chain, inside the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithLimiterConfig sets the rate limiter configuration. If not set,
// ratelimit.DefaultConfig() is used.
func WithLimiterConfig(cfg ratelimit.Config) Option {
	return func(eng *Engine) {
		eng.limiterCfg = cfg
	}
}

// WithJanitorOptions passes options through to the maintenance janitor.
func WithJanitorOptions(opts ...maintenance.Option) Option {
	return func(eng *Engine) {
		eng.janitorOpts = append(eng.janitorOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Orchestrator.
// The Orchestrator's store must implement task.Store.
func Build(orc *vedfolnir.Orchestrator, opts ...Option) (*Engine, error) {
	logger := orc.Logger()
	st := orc.Store()

	if st == nil {
		return nil, vedfolnir.ErrNoStore
	}

	ts, ok := st.(task.Store)
	if !ok {
		return nil, fmt.Errorf("vedfolnir: store does not implement task.Store")
	}

	eng := &Engine{
		orc:        orc,
		hooks:      hook.NewRegistry(logger),
		registry:   worker.NewRegistry(),
		logger:     logger,
		limiterCfg: ratelimit.DefaultConfig(),
		defaults:   make(map[string]task.Options),
	}

	for _, opt := range opts {
		opt(eng)
	}

	q, err := queue.NewService(ts, queue.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	eng.queue = q

	lim, err := ratelimit.New(eng.limiterCfg, ratelimit.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	eng.limiter = lim

	eng.retrier = retry.New(retry.WithLogger(logger))

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.hooks.Register(obsExt)

	cfg := orc.Config()

	// Build default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, cfg.DefaultTaskTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	executor := worker.NewExecutor(eng.registry, eng.hooks, eng.queue, logger, allMws...)

	eng.pool = worker.NewPool(
		eng.queue,
		executor,
		eng.hooks,
		logger,
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithClaimRate(cfg.ClaimRatePerSecond, cfg.ClaimBurst),
	)

	jan, err := maintenance.NewJanitor(eng, logger, eng.janitorOpts...)
	if err != nil {
		return nil, err
	}
	eng.janitor = jan

	// Wire back into the Orchestrator.
	orc.SetPool(eng.pool)
	orc.SetJanitor(eng.janitor)
	orc.SetHooks(eng.hooks)

	return eng, nil
}

// Register registers a typed work definition with the engine. The
// definition's options become the enqueue baseline for its kind.
func Register[T any](eng *Engine, def *worker.Definition[T]) {
	worker.RegisterDefinition(eng.registry, def)

	eng.defaultsMu.Lock()
	eng.defaults[def.Kind] = def.Opts
	eng.defaultsMu.Unlock()
}

// Enqueue marshals payload and admits a task for ownerID.
func Enqueue[T any](ctx context.Context, eng *Engine, ownerID, kind string, payload T, opts ...task.Option) (*task.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for kind %q: %w", kind, err)
	}

	return eng.EnqueueRaw(ctx, ownerID, kind, data, opts...)
}

// EnqueueRaw admits a task with a pre-serialized payload. Registered
// definition options for the kind apply first; call-site options
// override them.
func (eng *Engine) EnqueueRaw(ctx context.Context, ownerID, kind string, payload []byte, opts ...task.Option) (*task.Task, error) {
	eng.defaultsMu.RLock()
	base, ok := eng.defaults[kind]
	eng.defaultsMu.RUnlock()

	if ok {
		opts = append([]task.Option{task.WithOptions(base)}, opts...)
	}

	t, err := eng.queue.Enqueue(ctx, ownerID, kind, payload, opts...)
	if err != nil {
		return nil, err
	}

	eng.hooks.EmitTaskEnqueued(ctx, t)
	return t, nil
}

// Status returns the task's current record.
func (eng *Engine) Status(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return eng.queue.Get(ctx, taskID)
}

// Active returns the owner's queued or running task, if any.
func (eng *Engine) Active(ctx context.Context, ownerID string) (*task.Task, error) {
	return eng.queue.Active(ctx, ownerID)
}

// Cancel requests cancellation of a task on behalf of requestedBy. A
// queued task lands in cancelled immediately and the cancelled hook
// fires here; for a running task the cooperative flag is set and the
// hook fires when the worker observes it.
func (eng *Engine) Cancel(ctx context.Context, taskID id.TaskID, requestedBy string, opts ...queue.CancelOption) (*task.Task, error) {
	t, err := eng.queue.Cancel(ctx, taskID, requestedBy, opts...)
	if err != nil {
		return nil, err
	}

	if t.Status == task.StatusCancelled {
		eng.hooks.EmitTaskCancelled(ctx, t)
	}

	return t, nil
}

// Cleanup deletes terminal tasks older than olderThan, returning how
// many were removed.
func (eng *Engine) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return eng.queue.Cleanup(ctx, olderThan)
}

// RetryStats returns a snapshot of per-operation retry counters.
func (eng *Engine) RetryStats() map[string]retry.OperationStats {
	return eng.retrier.Stats().Snapshot()
}

// LimiterStats returns a snapshot of per-dimension admission counters.
func (eng *Engine) LimiterStats() map[ratelimit.Dimensions]ratelimit.Counters {
	return eng.limiter.Stats()
}

// Start begins task processing through the orchestrator.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.orc.Start(ctx)
}

// Stop gracefully shuts down through the orchestrator.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.orc.Stop(ctx)
}

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Registry returns the work registry.
func (eng *Engine) Registry() *worker.Registry { return eng.registry }

// Queue returns the task lifecycle service.
func (eng *Engine) Queue() *queue.Service { return eng.queue }

// Limiter returns the shared rate limiter. Work units pace their
// remote calls through it.
func (eng *Engine) Limiter() *ratelimit.Limiter { return eng.limiter }

// Retrier returns the shared retry engine.
func (eng *Engine) Retrier() *retry.Engine { return eng.retrier }

// Pool returns the dispatch pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Janitor returns the maintenance janitor.
func (eng *Engine) Janitor() *maintenance.Janitor { return eng.janitor }

// Orchestrator returns the underlying Orchestrator.
func (eng *Engine) Orchestrator() *vedfolnir.Orchestrator { return eng.orc }
