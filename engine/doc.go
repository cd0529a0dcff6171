// Package engine wires all Vedfolnir subsystems together and provides
// the primary application-level API for registering and enqueuing work.
//
// The engine package exists to break a fundamental import cycle: the
// root vedfolnir package defines Entity (imported by task, queue, etc.)
// and therefore cannot import those packages back. Engine sits above
// all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	orc, err := vedfolnir.New(
//	    vedfolnir.WithStore(pgStore),
//	    vedfolnir.WithConcurrency(8),
//	)
//
//	eng, err := engine.Build(orc,
//	    engine.WithExtension(stream.NewBroker(logger)),
//	    engine.WithExtension(audithook.New(recorder)),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	    engine.WithLimiterConfig(ratelimit.DefaultConfig()),
//	)
//
// # Registering Work
//
//	processor := caption.NewProcessor(client, generator, eng.Limiter(), eng.Retrier())
//	engine.Register(eng, processor.Definition())
//
// # Enqueuing Tasks
//
//	engine.Enqueue(ctx, eng, ownerID, caption.Kind, caption.Settings{
//	    Target: "mastodon.example",
//	    UserID: ownerID,
//	})
//
//	// With options
//	engine.Enqueue(ctx, eng, ownerID, caption.Kind, settings, task.WithPriority(10))
//
// # Options
//
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to the execution chain
//   - [WithLimiterConfig] — configure the rate limiter's buckets
//   - [WithJanitorOptions] — tune the housekeeping schedules
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
