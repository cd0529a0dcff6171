package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// tracerName is the instrumentation scope name for vedfolnir tracing.
const tracerName = "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"

// Tracing returns middleware that wraps task execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: vedfolnir.task.id, vedfolnir.task.kind,
// vedfolnir.task.owner_id, vedfolnir.task.priority.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "vedfolnir.task.execute",
			trace.WithAttributes(
				attribute.String("vedfolnir.task.id", t.ID.String()),
				attribute.String("vedfolnir.task.kind", t.Kind),
				attribute.String("vedfolnir.task.owner_id", t.OwnerID),
				attribute.Int("vedfolnir.task.priority", t.Priority),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
