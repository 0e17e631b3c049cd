package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/nixlim/sqlsidecar/internal/poscache"
)

// Position pairs a persisted record with its owning process and document.
type Position struct {
	PID      int
	Identity string
	Record   poscache.Record
}

// RecentPositions returns the most recently saved positions, newest first.
// Startup recovery seeds the recency cache with these so a host that
// outlived a sidecar restart still gets its restores.
func (s *Store) RecentPositions(limit int) ([]Position, error) {
	rows, err := s.db.Query(`
		SELECT pid, identity, cursor_line, cursor_col, scroll_top, folds, saved_at
		FROM positions
		ORDER BY datetime(saved_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var positions []Position
	var failCount int
	for rows.Next() {
		var p Position
		var folds sql.NullString
		var savedAt string

		err := rows.Scan(&p.PID, &p.Identity,
			&p.Record.View.Line, &p.Record.View.Column, &p.Record.View.ScrollTop,
			&folds, &savedAt)
		if err != nil {
			failCount++
			log.Printf("ERROR: failed to scan position row: %v", err)
			continue
		}

		p.Record.Folds = decodeFolds(folds)
		if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
			p.Record.Saved = t
		}

		positions = append(positions, p)
	}

	if failCount > 0 {
		log.Printf("WARNING: %d positions failed to recover from database", failCount)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}

	return positions, nil
}
