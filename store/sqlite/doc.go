// Package sqlite implements store.Store on database/sql with the pure-Go
// modernc.org/sqlite driver. Suitable for embedded/edge deployments, CLI
// tools, and standalone single-node installs that don't warrant a server
// database.
//
// The caller owns the *sql.DB lifecycle -- sqlite never closes it. SQLite
// serializes writers at the database level, so cap the pool at one
// connection to avoid busy errors under concurrent claims:
//
//	import (
//	    "database/sql"
//
//	    "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/sqlite"
//	)
//
//	db, _ := sql.Open("sqlite", "file:vedfolnir.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
//	db.SetMaxOpenConns(1)
//	store := sqlite.New(db)
//	store.Migrate(ctx)
package sqlite
