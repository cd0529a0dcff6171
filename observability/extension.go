package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// meterName identifies this instrumentation scope.
const meterName = "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/observability"

// Compile-time interface checks.
var (
	_ hook.Extension     = (*MetricsExtension)(nil)
	_ hook.TaskEnqueued  = (*MetricsExtension)(nil)
	_ hook.TaskCompleted = (*MetricsExtension)(nil)
	_ hook.TaskFailed    = (*MetricsExtension)(nil)
	_ hook.TaskCancelled = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OpenTelemetry.
// Register it as an extension to automatically track admission rates,
// completion counts, failure rates, and cancellations.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
	elapsed   metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global meter
// provider. Without a configured provider the instruments are no-ops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use an sdk meter backed by a ManualReader for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	enqueued, err := meter.Int64Counter("vedfolnir.task.enqueued",
		metric.WithDescription("Number of tasks admitted into the queue."),
		metric.WithUnit("{task}"),
	)
	completed, cErr := meter.Int64Counter("vedfolnir.task.completed",
		metric.WithDescription("Number of tasks that finished successfully."),
		metric.WithUnit("{task}"),
	)
	failed, fErr := meter.Int64Counter("vedfolnir.task.failed",
		metric.WithDescription("Number of tasks that failed terminally."),
		metric.WithUnit("{task}"),
	)
	cancelled, xErr := meter.Int64Counter("vedfolnir.task.cancelled",
		metric.WithDescription("Number of tasks cancelled by their owner or an admin."),
		metric.WithUnit("{task}"),
	)
	elapsed, eErr := meter.Float64Histogram("vedfolnir.task.elapsed",
		metric.WithDescription("Wall-clock execution time of completed tasks."),
		metric.WithUnit("s"),
	)
	_, _, _, _, _ = err, cErr, fErr, xErr, eErr // noop fallback guaranteed by OTel API contract

	return &MetricsExtension{
		enqueued:  enqueued,
		completed: completed,
		failed:    failed,
		cancelled: cancelled,
		elapsed:   elapsed,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnTaskEnqueued implements hook.TaskEnqueued.
func (m *MetricsExtension) OnTaskEnqueued(ctx context.Context, _ *task.Task) error {
	m.enqueued.Add(ctx, 1)
	return nil
}

// OnTaskCompleted implements hook.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, _ *task.Task, elapsed time.Duration) error {
	m.completed.Add(ctx, 1)
	m.elapsed.Record(ctx, elapsed.Seconds())
	return nil
}

// OnTaskFailed implements hook.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, _ *task.Task, _ error) error {
	m.failed.Add(ctx, 1)
	return nil
}

// OnTaskCancelled implements hook.TaskCancelled.
func (m *MetricsExtension) OnTaskCancelled(ctx context.Context, _ *task.Task) error {
	m.cancelled.Add(ctx, 1)
	return nil
}
