package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrateFreshDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"schema_version", "positions", "runs", "daily_summaries"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected version %d, got %d", currentSchemaVersion, version)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO positions (pid, identity, saved_at) VALUES (1, '/a.sql', '2026-08-25T10:00:00Z')",
	); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	db.Close()

	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()

	var count int
	if err := db2.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected data to survive reopen, got %d rows", count)
	}
}

func TestNewerSchemaVersionRefused(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "future.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = ?", currentSchemaVersion+10); err != nil {
		t.Fatalf("bumping version: %v", err)
	}
	db.Close()

	if _, err := OpenDB(dbPath); err == nil {
		t.Fatal("expected error opening a newer-versioned database")
	} else if !strings.Contains(err.Error(), "newer") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deep", "cache.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("expected parent dirs created: %v", err)
	}
	db.Close()
}
