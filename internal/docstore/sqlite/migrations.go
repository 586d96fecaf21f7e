package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the schema. These run on
// startup to ensure tables exist. One table holds every document; parent is
// the containing collection path so collection scans stay indexed.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    path TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
