// ABOUTME: Record store schema definitions
// ABOUTME: Handles SQLite table creation for canonical deals and shared state blobs
package store

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id INTEGER PRIMARY KEY,
	title TEXT,
	client_name TEXT,
	pipeline_id INTEGER,
	pipeline_name TEXT,
	won_at DATETIME,
	payload TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_title ON deals(title);
CREATE INDEX IF NOT EXISTS idx_deals_client_name ON deals(client_name);
CREATE INDEX IF NOT EXISTS idx_deals_pipeline_id ON deals(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_deals_won_at ON deals(won_at);

CREATE TABLE IF NOT EXISTS shared_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
