// Package postgres implements the task store using pgx/v5 with raw SQL.
// Owner exclusivity rides on a partial unique index, and claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never take the same task.
package postgres
