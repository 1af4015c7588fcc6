package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema history:
//
//	v1: eff_samples(timestamp, efficiency, cadence)
//	v2: eff_samples(timestamp, efficiency, rhythm, prompt) — the cadence
//	    column was renamed to rhythm and a prompt column was added.
//
// Samples are append-only and history is never rewritten, so migration is
// strictly additive: rename the column in place and default the new prompt
// column to the empty string for records written under v1.
const (
	SchemaVersion = 2

	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
	    version     INTEGER PRIMARY KEY,
	    applied_at  TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS eff_samples (
	    timestamp   INTEGER NOT NULL,
	    efficiency  REAL NOT NULL,
	    rhythm      INTEGER NOT NULL,
	    prompt      TEXT NOT NULL DEFAULT ''
	);`

	insertSampleSQL = `
	INSERT INTO eff_samples (timestamp, efficiency, rhythm, prompt)
	VALUES (?, ?, ?, ?)`

	// rowid order is insertion order, which is the contract for readback
	selectSamplesSQL = `
	SELECT timestamp, efficiency, rhythm, prompt
	FROM eff_samples
	ORDER BY rowid`
)

// initSchema creates a fresh database at the current version
func initSchema(db *sql.DB, logger *log.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
				logger.Printf("SampleStore: schema rollback failed: %v", err)
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := recordVersion(tx, SchemaVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	committed = true

	logger.Printf("SampleStore: schema initialized at version %d", SchemaVersion)
	return nil
}

// schemaVersion returns the current schema version, 0 for an empty database
func schemaVersion(db *sql.DB) (int, error) {
	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		// Databases written before versioning existed carry the v1 layout
		// if the samples table is present at all.
		legacy, err := tableExists(db, "eff_samples")
		if err != nil {
			return 0, err
		}
		if legacy {
			return 1, nil
		}
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
	SELECT version FROM schema_versions
	ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
	SELECT EXISTS (
	    SELECT 1 FROM sqlite_master
	    WHERE type='table' AND name=?
	)`, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for table %s: %w", tableName, err)
	}
	return exists, nil
}

// validateAndMigrate brings the database to the current schema version.
// Existing records are kept in place; a v1 record reads back under v2 with
// its prompt defaulted to the empty string.
func validateAndMigrate(db *sql.DB, logger *log.Logger) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	switch version {
	case 0:
		return initSchema(db, logger)
	case 1:
		return migrateV1ToV2(db, logger)
	case SchemaVersion:
		return nil
	default:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
}

func migrateV1ToV2(db *sql.DB, logger *log.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
				logger.Printf("SampleStore: migration rollback failed: %v", err)
			}
		}
	}()

	stmts := []string{
		`ALTER TABLE eff_samples RENAME COLUMN cadence TO rhythm`,
		`ALTER TABLE eff_samples ADD COLUMN prompt TEXT NOT NULL DEFAULT ''`,
		`CREATE TABLE IF NOT EXISTS schema_versions (
		    version     INTEGER PRIMARY KEY,
		    applied_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	if err := recordVersion(tx, SchemaVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true

	logger.Printf("SampleStore: migrated schema from version 1 to %d", SchemaVersion)
	return nil
}

func recordVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
	INSERT INTO schema_versions (version, applied_at)
	VALUES (?, datetime('now'))`, version)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
