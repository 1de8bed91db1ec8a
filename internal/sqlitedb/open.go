// Package sqlitedb opens the SQLite database shared by the session and
// activity stores.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"
)

// DefaultDSN is used when no DATABASE_URL is configured.
const DefaultDSN = "file:accountdesk.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Open opens dsn with the pure-Go sqlite driver and wraps it in an ent
// driver. The pool is pinned to one connection so ":memory:" databases
// are shared by every caller.
func Open(ctx context.Context, dsn string) (*entsql.Driver, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return entsql.OpenDB(dialect.SQLite, db), nil
}
