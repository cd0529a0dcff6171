// Package bunstore implements the task store using the Bun ORM with
// PostgreSQL dialect. Suitable for teams already carrying Bun elsewhere in
// their stack; it manages the same schema as the pgx backend.
//
// The caller owns the *bun.DB lifecycle — bunstore never closes it. Pass the
// db handle through the constructor:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(...))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
package bunstore
