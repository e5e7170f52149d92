package store

import (
	"context"
	"fmt"
)

// schemaDDL creates the destination tables. Kept IF NOT EXISTS so that
// opening an existing database is a no-op; Reset drops and recreates.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS expr (
		gene_id TEXT NOT NULL,
		cell_id TEXT NOT NULL,
		expr    DOUBLE NOT NULL,
		PRIMARY KEY (gene_id, cell_id)
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		metacluster_id INTEGER NOT NULL,
		cluster_id     INTEGER NOT NULL,
		cell_id        TEXT NOT NULL,
		dataset_name   TEXT NOT NULL,
		PRIMARY KEY (metacluster_id, cluster_id, cell_id),
		UNIQUE (cell_id, dataset_name)
	)`,
	`CREATE TABLE IF NOT EXISTS loads (
		id           TEXT PRIMARY KEY,
		dataset_name TEXT NOT NULL,
		kind         TEXT NOT NULL,
		records      INTEGER NOT NULL,
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME NOT NULL
	)`,
}

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}
	return nil
}

// Reset drops and recreates every table, discarding all data. This is
// the idempotent-replace path used by `exprdb init --replace`.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, table := range []string{"expr", "clusters", "loads"} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}
	return s.migrate()
}
