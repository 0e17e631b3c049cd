package storage

import (
	"database/sql"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/nixlim/sqlsidecar/internal/poscache"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// positionRow holds the data for a single positions row.
type positionRow struct {
	PID       int
	Identity  string
	Line      int
	Column    int
	ScrollTop int
	Folds     interface{} // JSON string or nil
	SavedAt   string
}

// runRow holds the data for a single runs row.
type runRow struct {
	PID         int
	Surface     int64
	Identity    string
	Outcome     string
	Diagnostics int
	Highlights  int
	Faults      int
	DurationMs  float64
	CompletedAt string
}

// sanitizeFloat replaces NaN and Inf with 0.0.
func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

func buildPositionRow(pid int, identity string, rec poscache.Record) *positionRow {
	saved := rec.Saved
	if saved.IsZero() {
		saved = time.Now()
	}

	row := &positionRow{
		PID:       pid,
		Identity:  identity,
		Line:      rec.View.Line,
		Column:    rec.View.Column,
		ScrollTop: rec.View.ScrollTop,
		SavedAt:   saved.UTC().Format(time.RFC3339Nano),
	}

	if len(rec.Folds.Collapsed) > 0 {
		data, err := json.Marshal(rec.Folds.Collapsed)
		if err != nil {
			log.Printf("WARNING: failed to marshal folds JSON: %v", err)
		} else {
			row.Folds = string(data)
		}
	}

	return row
}

func decodeFolds(folds sql.NullString) session.FoldState {
	var fs session.FoldState
	if !folds.Valid || folds.String == "" {
		return fs
	}
	if err := json.Unmarshal([]byte(folds.String), &fs.Collapsed); err != nil {
		log.Printf("WARNING: failed to decode folds JSON: %v", err)
	}
	return fs
}

func buildRunRow(run RunRecord) *runRow {
	return &runRow{
		PID:         run.PID,
		Surface:     int64(run.Surface),
		Identity:    run.Identity,
		Outcome:     run.Outcome,
		Diagnostics: run.Diagnostics,
		Highlights:  run.Highlights,
		Faults:      run.Faults,
		DurationMs:  sanitizeFloat(float64(run.Duration) / float64(time.Millisecond)),
		CompletedAt: run.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Store) writePosition(tx *sql.Tx, row *positionRow) error {
	_, err := tx.Exec(`
		INSERT INTO positions (pid, identity, cursor_line, cursor_col, scroll_top, folds, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid, identity) DO UPDATE SET
			cursor_line=excluded.cursor_line,
			cursor_col=excluded.cursor_col,
			scroll_top=excluded.scroll_top,
			folds=excluded.folds,
			saved_at=excluded.saved_at
	`, row.PID, row.Identity, row.Line, row.Column, row.ScrollTop, row.Folds, row.SavedAt)
	return err
}

func (s *Store) writeDropPositions(tx *sql.Tx, pid int) error {
	_, err := tx.Exec("DELETE FROM positions WHERE pid = ?", pid)
	return err
}

func (s *Store) writeRun(tx *sql.Tx, row *runRow) error {
	_, err := tx.Exec(`
		INSERT INTO runs (pid, surface, identity, outcome, diagnostics, highlights, faults, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.PID, row.Surface, row.Identity, row.Outcome,
		row.Diagnostics, row.Highlights, row.Faults, row.DurationMs, row.CompletedAt)
	return err
}
