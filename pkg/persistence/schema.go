package persistence

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 3

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// GetSchemaVersion returns the recorded schema version, or 0 for a new database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	var statements []string
	switch version {
	case 1:
		statements = []string{
			`CREATE TABLE invocations (
				id               TEXT PRIMARY KEY,
				started_at       DATETIME NOT NULL,
				duration_ms      INTEGER NOT NULL,
				primary_model    TEXT NOT NULL,
				secondary_model  TEXT NOT NULL,
				primary_attempts INTEGER NOT NULL,
				used_secondary   BOOLEAN NOT NULL,
				status           TEXT NOT NULL,
				error_code       TEXT NOT NULL DEFAULT '',
				error_message    TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_invocations_started_at ON invocations(started_at)`,
		}
	case 2:
		// Which backend produced the answer, empty on failure.
		statements = []string{
			`ALTER TABLE invocations ADD COLUMN answered_by TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX idx_invocations_status ON invocations(status)`,
		}
	case 3:
		// Request IDs come from clients and repeat on retries, so they move
		// out of the primary key into their own column.
		statements = []string{
			`ALTER TABLE invocations ADD COLUMN request_id TEXT NOT NULL DEFAULT ''`,
			`UPDATE invocations SET request_id = id`,
			`CREATE INDEX idx_invocations_request_id ON invocations(request_id)`,
		}
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", stmt, err)
		}
	}
	return nil
}
