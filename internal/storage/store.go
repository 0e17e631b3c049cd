// Package storage persists editing positions and analysis history in
// SQLite. Reads are synchronous; writes go through a buffered channel to a
// single writer goroutine that batches them into transactions, so the
// notification path never waits on disk.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/poscache"
)

const (
	writeChannelSize = 1000
	batchSize        = 50
	flushInterval    = 100 * time.Millisecond
)

// RunRecord is one finished analysis run, kept for the history view and
// daily summaries.
type RunRecord struct {
	PID         int
	Surface     notify.Handle
	Identity    string
	Outcome     string
	Diagnostics int
	Highlights  int
	Faults      int
	Duration    time.Duration
	CompletedAt time.Time
}

type writeOp struct {
	opType   string
	position *positionRow
	run      *runRow
	dropPID  int
}

// Store is the SQLite persistence layer. It satisfies poscache.Backend;
// stores and drops are asynchronous, which is safe because the cache's
// in-memory tier answers for rows still waiting in the write queue.
type Store struct {
	db              *sql.DB
	writeChan       chan writeOp
	droppedWrites   atomic.Int64
	doneChan        chan struct{}
	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}
}

var _ poscache.Backend = (*Store)(nil)

func Open(dbPath string, retentionDays, summaryRetentionDays int) (*Store, error) {
	return openWithChannelSize(dbPath, writeChannelSize, retentionDays, summaryRetentionDays)
}

func openWithChannelSize(dbPath string, chanSize, retentionDays, summaryRetentionDays int) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &Store{
		db:              db,
		writeChan:       make(chan writeOp, chanSize),
		doneChan:        make(chan struct{}),
		cancelMaint:     cancel,
		maintenanceDone: make(chan struct{}),
	}

	go store.writerLoop()
	store.startMaintenance(ctx, retentionDays, summaryRetentionDays)

	return store, nil
}

// StorePosition queues a position upsert.
func (s *Store) StorePosition(pid int, identity string, rec poscache.Record) {
	if identity == "" {
		return
	}
	s.sendWrite(writeOp{
		opType:   "position",
		position: buildPositionRow(pid, identity, rec),
	})
}

// LoadPosition reads a position synchronously. Rows with nothing to restore
// report a miss.
func (s *Store) LoadPosition(pid int, identity string) (poscache.Record, bool) {
	var rec poscache.Record
	var folds sql.NullString
	var savedAt string

	err := s.db.QueryRow(`
		SELECT cursor_line, cursor_col, scroll_top, folds, saved_at
		FROM positions
		WHERE pid = ? AND identity = ?
	`, pid, identity).Scan(&rec.View.Line, &rec.View.Column, &rec.View.ScrollTop, &folds, &savedAt)
	if err == sql.ErrNoRows {
		return poscache.Record{}, false
	}
	if err != nil {
		log.Printf("ERROR: failed to load position for pid %d: %v", pid, err)
		return poscache.Record{}, false
	}

	rec.Folds = decodeFolds(folds)
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		rec.Saved = t
	}

	return rec, !rec.IsZero()
}

// DropPositions queues deletion of every position owned by a process id.
func (s *Store) DropPositions(pid int) {
	s.sendWrite(writeOp{opType: "dropPositions", dropPID: pid})
}

// RecordRun queues an analysis run for the history log.
func (s *Store) RecordRun(run RunRecord) {
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now()
	}
	s.sendWrite(writeOp{opType: "run", run: buildRunRow(run)})
}

func (s *Store) sendWrite(op writeOp) {
	if s.closed.Load() {
		return
	}
	defer func() { _ = recover() }()
	select {
	case s.writeChan <- op:
	default:
		s.droppedWrites.Add(1)
		log.Printf("WARNING: SQLite write channel full, dropped write (type=%s)", op.opType)
	}
}

func (s *Store) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

func (s *Store) Close() error {
	// Step 1: Refuse new writes.
	s.closed.Store(true)

	// Step 2: Stop maintenance (30s timeout) so a cycle cannot run against
	// a half-drained queue.
	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		log.Printf("WARNING: maintenance goroutine did not stop within 30s")
	}

	// Step 3: Close the write channel.
	close(s.writeChan)

	// Step 4: Drain the writer (10s timeout).
	select {
	case <-s.doneChan:
	case <-time.After(10 * time.Second):
		log.Printf("ERROR: failed to drain writes within 10s, data may be lost")
	}

	// Step 5: Fold today's runs into the daily summaries.
	if err := s.runDailyAggregation(); err != nil {
		log.Printf("ERROR: failed to run final aggregation: %v", err)
	}

	// Step 6: Close the database.
	return s.db.Close()
}

func (s *Store) writerLoop() {
	defer close(s.doneChan)

	batch := make([]writeOp, 0, batchSize)
	flushTimer := time.NewTimer(flushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-s.writeChan:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(batch)
				}
				return
			}

			batch = append(batch, op)

			if len(batch) >= batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
				flushTimer.Reset(flushInterval)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
			flushTimer.Reset(flushInterval)
		}
	}
}

func (s *Store) flushBatch(batch []writeOp) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("ERROR: failed to begin transaction: %v", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range batch {
		if err := s.executeOp(tx, op); err != nil {
			log.Printf("ERROR: failed to execute write op (type=%s): %v", op.opType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: failed to commit transaction: %v", err)
	}
}

func (s *Store) executeOp(tx *sql.Tx, op writeOp) error {
	switch op.opType {
	case "position":
		return s.writePosition(tx, op.position)
	case "dropPositions":
		return s.writeDropPositions(tx, op.dropPID)
	case "run":
		return s.writeRun(tx, op.run)
	default:
		return fmt.Errorf("unknown op type: %s", op.opType)
	}
}
