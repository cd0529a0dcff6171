// Package audithook is an extension that bridges task lifecycle events
// to an audit trail backend.
//
// Because caption tasks run on behalf of platform users, deployments
// often need a durable record of who enqueued what, which worker ran
// it, and how it ended. Every lifecycle hook emits a structured audit
// event through the [Recorder] interface, with severity assigned by
// outcome (info for normal operations, critical for terminal failures)
// and metadata carrying the task kind, owner, and timing.
//
// The package defines no storage of its own: callers inject a
// [Recorder] (or a [RecorderFunc] closure) that writes to their audit
// table, append-only log, or SIEM.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditLog.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
// Progress events fire on every checkpoint; most deployments keep only
// the terminal outcomes:
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionTaskCompleted,
//	        audithook.ActionTaskFailed,
//	        audithook.ActionTaskCancelled,
//	    ),
//	)
package audithook
