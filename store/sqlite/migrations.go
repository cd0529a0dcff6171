package sqlite

// migration is one named schema step. Steps run in order, and each is
// recorded in vedfolnir_migrations so reruns skip it.
type migration struct {
	name  string
	stmts []string
}

var migrations = []migration{
	// 001: Create the tasks table and its indexes.
	//
	// Timestamps are TEXT in a fixed-width UTC format (see timeLayout),
	// durations INTEGER nanoseconds, booleans INTEGER 0/1. The partial
	// unique index on owner_id enforces the one-active-task-per-owner
	// rule, exactly as the postgres backend does.
	{
		name: "001_create_tasks",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS vedfolnir_tasks (
				id               TEXT PRIMARY KEY,
				owner_id         TEXT NOT NULL,
				kind             TEXT NOT NULL,
				payload          BLOB,
				status           TEXT NOT NULL DEFAULT 'queued',
				priority         INTEGER NOT NULL DEFAULT 0,
				progress_percent INTEGER NOT NULL DEFAULT 0,
				progress_message TEXT NOT NULL DEFAULT '',
				error_message    TEXT NOT NULL DEFAULT '',
				cancel_requested INTEGER NOT NULL DEFAULT 0,
				worker_id        TEXT NOT NULL DEFAULT '',
				started_at       TEXT,
				ended_at         TEXT,
				timeout          INTEGER NOT NULL DEFAULT 0,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
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
