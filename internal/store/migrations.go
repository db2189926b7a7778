package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial expansions log",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add shortcut_usage tally maintained by trigger",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS expansions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    shortcut     TEXT NOT NULL,
    replacement  TEXT NOT NULL,
    source       TEXT NOT NULL CHECK (source IN ('match', 'accept', 'complete')),
    at_ns        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expansions_at ON expansions(at_ns);
CREATE INDEX IF NOT EXISTS idx_expansions_shortcut ON expansions(shortcut);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_expansions_shortcut;
DROP INDEX IF EXISTS idx_expansions_at;
DROP TABLE IF EXISTS expansions;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS shortcut_usage (
    shortcut      TEXT PRIMARY KEY,
    replacement   TEXT NOT NULL,
    uses          INTEGER NOT NULL DEFAULT 0,
    last_used_ns  INTEGER NOT NULL
);

INSERT OR IGNORE INTO shortcut_usage (shortcut, replacement, uses, last_used_ns)
SELECT shortcut, MAX(replacement), COUNT(*), MAX(at_ns) FROM expansions GROUP BY shortcut;

CREATE TRIGGER IF NOT EXISTS trg_expansions_usage AFTER INSERT ON expansions
BEGIN
    INSERT INTO shortcut_usage (shortcut, replacement, uses, last_used_ns)
    VALUES (NEW.shortcut, NEW.replacement, 1, NEW.at_ns)
    ON CONFLICT(shortcut) DO UPDATE SET
        uses = uses + 1,
        replacement = excluded.replacement,
        last_used_ns = MAX(last_used_ns, excluded.last_used_ns);
END;
`

const migrationV2Down = `
DROP TRIGGER IF EXISTS trg_expansions_usage;
DROP TABLE IF EXISTS shortcut_usage;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	currentVersion, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", currentVersion, err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", currentVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

// ValidateSchema checks that all expected tables exist.
func ValidateSchema(db *sql.DB) error {
	requiredTables := []string{
		"expansions",
		"shortcut_usage",
		"schema_migrations",
	}

	for _, table := range requiredTables {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}
