package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/logger"
)

const defaultListLimit = 100

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent detector runs share one connection, so the pragmas below stick.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drift_runs (
		id TEXT PRIMARY KEY,
		detector TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		drift_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_detector ON drift_runs(detector);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON drift_runs(started_at);

	CREATE TABLE IF NOT EXISTS drift_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		detector TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		payload TEXT NOT NULL,
		detected_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES drift_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_records_run ON drift_records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_detector ON drift_records(detector);
	CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON drift_records(fingerprint);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertRun(ctx context.Context, run *models.DriftRun) error {
	query := `
		INSERT INTO drift_runs (id, detector, kind, status, drift_count, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		run.ID,
		run.Detector,
		run.Kind,
		run.Status,
		run.DriftCount,
		nullString(run.Error),
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

func (c *Client) FinishRun(ctx context.Context, run *models.DriftRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	query := `
		UPDATE drift_runs
		SET status = ?, drift_count = ?, error = ?, finished_at = ?
		WHERE id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		run.Status,
		run.DriftCount,
		nullString(run.Error),
		run.FinishedAt.UnixMilli(),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	logger.Debug("Run finished in store",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("drift_count", run.DriftCount),
	)

	return nil
}

func (c *Client) InsertRecord(ctx context.Context, rec *models.DriftRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO drift_records (run_id, detector, fingerprint, payload, detected_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := c.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Detector,
		rec.Fingerprint,
		string(payload),
		rec.DetectedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert drift record: %w", err)
	}

	rec.ID, _ = res.LastInsertId()
	return nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*models.DriftRun, error) {
	query := `
		SELECT id, detector, kind, status, drift_count, error, started_at, finished_at
		FROM drift_runs WHERE id = ?
	`

	run, err := scanRun(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first, optionally for one detector.
func (c *Client) ListRuns(ctx context.Context, detector string, limit int) ([]models.DriftRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, detector, kind, status, drift_count, error, started_at, finished_at
		FROM drift_runs
	`
	var args []any
	if detector != "" {
		query += " WHERE detector = ?"
		args = append(args, detector)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.DriftRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListRecords returns drift records in insertion order.
func (c *Client) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.DriftRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var where []string
	var args []any
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Detector != "" {
		where = append(where, "detector = ?")
		args = append(args, filter.Detector)
	}

	query := "SELECT id, run_id, detector, fingerprint, payload, detected_at FROM drift_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drift records: %w", err)
	}
	defer rows.Close()

	var records []models.DriftRecord
	for rows.Next() {
		var rec models.DriftRecord
		var payload string
		var detectedAt int64

		err := rows.Scan(&rec.ID, &rec.RunID, &rec.Detector, &rec.Fingerprint, &payload, &detectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drift record: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		rec.DetectedAt = time.UnixMilli(detectedAt)

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drift records: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.DriftRun, error) {
	var run models.DriftRun
	var errText sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64

	err := s.Scan(&run.ID, &run.Detector, &run.Kind, &run.Status, &run.DriftCount, &errText, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Error = errText.String
	run.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
