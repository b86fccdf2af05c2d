package sqlite

import (
	"database/sql"
	"fmt"
)

const createViewCatalogTable = `
CREATE TABLE IF NOT EXISTS view_catalog (
	name               TEXT PRIMARY KEY,
	id                 TEXT NOT NULL,
	layer              INTEGER NOT NULL,
	domain             TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	base_tables        TEXT NOT NULL,
	depends_on_views   TEXT NOT NULL,
	created_by_session TEXT NOT NULL DEFAULT '',
	created_by_role    TEXT NOT NULL DEFAULT '',
	created_by_query   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL,
	status             TEXT NOT NULL,
	prior_status       TEXT NOT NULL DEFAULT '',
	promoted_at        TIMESTAMP,
	materialized_at    TIMESTAMP,
	archived_at        TIMESTAMP,
	stale_at           TIMESTAMP,
	usage_count        INTEGER NOT NULL DEFAULT 0,
	last_used          TIMESTAMP,
	avg_query_time_ms  REAL NOT NULL DEFAULT 0,
	query_samples      INTEGER NOT NULL DEFAULT 0,
	freshness_type     TEXT NOT NULL DEFAULT 'LIVE',
	last_validated     TIMESTAMP,
	is_valid           INTEGER NOT NULL DEFAULT 1,
	definition         TEXT NOT NULL,
	definition_hash    TEXT NOT NULL,
	tags               TEXT NOT NULL DEFAULT '[]',
	approved           INTEGER NOT NULL DEFAULT 0,
	approved_by        TEXT NOT NULL DEFAULT '',
	approved_at        TIMESTAMP,
	review_notes       TEXT NOT NULL DEFAULT ''
)`

var viewCatalogIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_view_catalog_domain_layer ON view_catalog(domain, layer)`,
	`CREATE INDEX IF NOT EXISTS idx_view_catalog_status ON view_catalog(status)`,
}

// createSchema creates the catalog table and its secondary indexes inside a
// single transaction.
func createSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(createViewCatalogTable); err != nil {
		return fmt.Errorf("failed to create view_catalog table: %w", err)
	}
	for i, idx := range viewCatalogIndexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}
