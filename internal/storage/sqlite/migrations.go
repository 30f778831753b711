package sqlite

import (
	"context"
	"database/sql"
)

// schema sets up the database. It runs on every startup, so every statement
// must be idempotent.
//
// payload holds the bill JSON exactly as received and is the authoritative
// record; user, total and created_at are copied out of it for querying.
const schema = `
CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    user TEXT NOT NULL DEFAULT '',
    total REAL NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_created_at ON bills(created_at);
CREATE INDEX IF NOT EXISTS idx_bills_user_created_at ON bills(user, created_at);
`

// runMigrations executes the schema setup.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
