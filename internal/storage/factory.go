package storage

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixlim/sqlsidecar/internal/config"
)

// NewStore opens the configured database. An empty path or an unopenable
// database degrades to no persistence rather than failing startup; the
// position cache runs memory-only in that case.
func NewStore(cfg config.CacheConfig) (*Store, bool) {
	if cfg.DBPath == "" {
		return nil, false
	}

	dbPath := expandTilde(cfg.DBPath)

	store, err := Open(dbPath, cfg.RetentionDays, cfg.SummaryRetentionDays)
	if err != nil {
		log.Printf("WARNING: SQLite storage unavailable (%v), positions will not survive restarts", err)
		return nil, false
	}

	return store, true
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
