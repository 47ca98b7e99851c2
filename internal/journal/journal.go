// Package journal keeps a local sqlite record of demo runs and every
// storage call they issued, so a run can be matched against the audit
// events it produced.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chmdznr/minio-audit-demo/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

// Recorder receives run lifecycle and per-call records from the driver
type Recorder interface {
	StartRun(run *models.Run) error
	RecordOperation(op *models.Operation) error
	FinishRun(run *models.Run) error
}

// Nop discards everything; used when journaling is disabled
type Nop struct{}

func (Nop) StartRun(*models.Run) error { return nil }
func (Nop) RecordOperation(*models.Operation) error { return nil }
func (Nop) FinishRun(*models.Run) error { return nil }

// DB represents a journal database connection
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the journal at path
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize journal %s: %w", path, err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			endpoint TEXT,
			bucket TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			status TEXT,
			files_generated INTEGER DEFAULT 0,
			files_uploaded INTEGER DEFAULT 0,
			files_downloaded INTEGER DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS operations (
			run_id TEXT,
			seq INTEGER,
			name TEXT,
			object_key TEXT,
			size INTEGER,
			outcome TEXT,
			error TEXT,
			at DATETIME,
			duration_ns INTEGER,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_operations_outcome ON operations(run_id, outcome);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// StartRun inserts a new run row
func (db *DB) StartRun(run *models.Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, endpoint, bucket, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Endpoint, run.Bucket, run.StartedAt.UTC(), run.Status)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final status and counters of a run
func (db *DB) FinishRun(run *models.Run) error {
	_, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, files_generated = ?, files_uploaded = ?, files_downloaded = ?
		WHERE id = ?
	`, run.FinishedAt.UTC(), run.Status, run.FilesGenerated, run.FilesUploaded, run.FilesDownloaded, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// RecordOperation appends one storage call to its run
func (db *DB) RecordOperation(op *models.Operation) error {
	_, err := db.Exec(`
		INSERT INTO operations (run_id, seq, name, object_key, size, outcome, error, at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.RunID, op.Seq, op.Name, op.Key, op.Size, op.Outcome, op.Error, op.At.UTC(), int64(op.Duration))
	return err
}

const runColumns = `id, endpoint, bucket, started_at, finished_at, status, files_generated, files_uploaded, files_downloaded`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var finished sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Endpoint,
		&run.Bucket,
		&run.StartedAt,
		&finished,
		&run.Status,
		&run.FilesGenerated,
		&run.FilesUploaded,
		&run.FilesDownloaded,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// GetRun retrieves a run by id
func (db *DB) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run
func (db *DB) LatestRun() (*models.Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("no runs recorded: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first
func (db *DB) ListRuns(limit int) ([]models.Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetOperations returns the calls of a run in issue order
func (db *DB) GetOperations(runID string) ([]models.Operation, error) {
	rows, err := db.Query(`
		SELECT run_id, seq, name, object_key, size, outcome, error, at, duration_ns
		FROM operations
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var op models.Operation
		var durationNS int64
		err = rows.Scan(&op.RunID, &op.Seq, &op.Name, &op.Key, &op.Size, &op.Outcome, &op.Error, &op.At, &durationNS)
		if err != nil {
			return nil, err
		}
		op.Duration = time.Duration(durationNS)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// GetStats returns aggregated call counts for a run
func (db *DB) GetStats(runID string) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*) as total_ops,
			COUNT(CASE WHEN outcome = 'ok' THEN 1 END) as ok_ops,
			COUNT(CASE WHEN outcome = 'warn' THEN 1 END) as warn_ops,
			COUNT(CASE WHEN outcome = 'failed' THEN 1 END) as failed_ops,
			COALESCE(SUM(CASE WHEN name = 'PutObject' AND outcome = 'ok' THEN size ELSE 0 END), 0) as uploaded_size,
			COALESCE(SUM(CASE WHEN name = 'GetObject' AND outcome = 'ok' THEN size ELSE 0 END), 0) as downloaded_size
		FROM operations
		WHERE run_id = ?
	`, runID).Scan(
		&stats.TotalOps,
		&stats.OKOps,
		&stats.WarnOps,
		&stats.FailedOps,
		&stats.UploadedSize,
		&stats.DownloadedSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

var _ Recorder = (*DB)(nil)
