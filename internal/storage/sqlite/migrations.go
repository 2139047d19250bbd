// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. All are idempotent
// and run on every startup.
var migrationsList = []Migration{
	{"asset_file_size_column", migrateAssetFileSizeColumn},
	{"person_enrichment_columns", migratePersonEnrichmentColumns},
	{"provider_field_weights", migrateProviderFieldWeights},
	{"canonical_confidence_column", migrateCanonicalConfidenceColumn},
}

// RunMigrations applies every registered migration in order.
func RunMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

// columnExists probes a table for a named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// migrateAssetFileSizeColumn backfills file_size on databases created
// before the hasher started reporting sizes.
func migrateAssetFileSizeColumn(db *sql.DB) error {
	return addColumnIfMissing(db, "media_assets", "file_size", "INTEGER NOT NULL DEFAULT 0")
}

// migratePersonEnrichmentColumns adds the harvest-enrichment fields.
func migratePersonEnrichmentColumns(db *sql.DB) error {
	for _, col := range []struct{ name, def string }{
		{"external_id", "TEXT NOT NULL DEFAULT ''"},
		{"portrait_url", "TEXT NOT NULL DEFAULT ''"},
		{"biography", "TEXT NOT NULL DEFAULT ''"},
		{"enriched_at", "TEXT"},
	} {
		if err := addColumnIfMissing(db, "persons", col.name, col.def); err != nil {
			return err
		}
	}
	return nil
}

// migrateProviderFieldWeights adds the per-field weight override blob.
func migrateProviderFieldWeights(db *sql.DB) error {
	return addColumnIfMissing(db, "provider_config", "field_weights", "TEXT NOT NULL DEFAULT '{}'")
}

// migrateCanonicalConfidenceColumn adds the scored confidence next to the
// winning value.
func migrateCanonicalConfidenceColumn(db *sql.DB) error {
	return addColumnIfMissing(db, "canonical_values", "confidence", "REAL NOT NULL DEFAULT 0.0")
}
