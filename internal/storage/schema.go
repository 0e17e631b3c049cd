package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

func OpenDB(dbPath string) (*sql.DB, error) {
	parentDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	} else {
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if err == sql.ErrNoRows {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this sqlsidecar version supports (max: %d); upgrade sqlsidecar or delete %s to start fresh",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}

	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}

	return nil
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (1)")
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			pid INTEGER NOT NULL,
			identity TEXT NOT NULL,
			cursor_line INTEGER NOT NULL DEFAULT 0,
			cursor_col INTEGER NOT NULL DEFAULT 0,
			scroll_top INTEGER NOT NULL DEFAULT 0,
			folds TEXT,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (pid, identity)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating positions table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pid INTEGER NOT NULL,
			surface INTEGER NOT NULL,
			identity TEXT,
			outcome TEXT NOT NULL,
			diagnostics INTEGER NOT NULL DEFAULT 0,
			highlights INTEGER NOT NULL DEFAULT 0,
			faults INTEGER NOT NULL DEFAULT 0,
			duration_ms REAL NOT NULL DEFAULT 0,
			completed_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating runs table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS daily_summaries (
			date TEXT PRIMARY KEY,
			runs INTEGER NOT NULL DEFAULT 0,
			applied INTEGER NOT NULL DEFAULT 0,
			parse_failures INTEGER NOT NULL DEFAULT 0,
			faults INTEGER NOT NULL DEFAULT 0,
			diagnostics INTEGER NOT NULL DEFAULT 0,
			avg_duration_ms REAL NOT NULL DEFAULT 0,
			max_duration_ms REAL NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("creating daily_summaries table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_positions_saved ON positions(saved_at)")
	if err != nil {
		return fmt.Errorf("creating idx_positions_saved: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at)")
	if err != nil {
		return fmt.Errorf("creating idx_runs_completed: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_runs_surface ON runs(surface)")
	if err != nil {
		return fmt.Errorf("creating idx_runs_surface: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
