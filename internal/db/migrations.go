package db

import (
	"database/sql"
	"fmt"
)

// columnExists checks whether a column exists on a table
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// tableExists checks whether a table exists in the database
func (db *DB) tableExists(table string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// Table might not exist yet
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// RunMigrations runs any pending database migrations.
func (db *DB) RunMigrations() error {
	currentVersion, _ := db.GetSchemaVersion()
	if currentVersion >= SchemaVersion {
		return nil
	}
	return db.withWriteLock(func() error {
		return db.runMigrationsLocked()
	})
}

func (db *DB) runMigrationsLocked() error {
	_, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	if err != nil {
		return fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion, err := db.GetSchemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, migration := range Migrations {
		if migration.Version <= currentVersion {
			continue
		}

		// Column additions are guarded: a database created from the current
		// base schema already has them, so only the version bump applies.
		switch migration.Version {
		case 2:
			exists, err := db.columnExists("pending_operations", "idempotency_key")
			if err != nil {
				return fmt.Errorf("check idempotency_key column: %w", err)
			}
			if exists {
				if err := db.setSchemaVersion(migration.Version); err != nil {
					return fmt.Errorf("set version %d: %w", migration.Version, err)
				}
				continue
			}
		case 3:
			exists, err := db.columnExists("sites", "deleted_at")
			if err != nil {
				return fmt.Errorf("check deleted_at column: %w", err)
			}
			if exists {
				if err := db.setSchemaVersion(migration.Version); err != nil {
					return fmt.Errorf("set version %d: %w", migration.Version, err)
				}
				continue
			}
		}

		if _, err := db.conn.Exec(migration.SQL); err != nil {
			return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		if err := db.setSchemaVersion(migration.Version); err != nil {
			return fmt.Errorf("set version %d: %w", migration.Version, err)
		}
	}
	return nil
}
