package postgres

// migration is one named schema step. Steps run in order, and each is
// recorded in vedfolnir_migrations so reruns skip it.
type migration struct {
	name  string
	stmts []string
}

var migrations = []migration{
	// 001: Create the tasks table and its indexes.
	//
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
