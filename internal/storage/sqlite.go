package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alienxp03/rpgen/internal/core"
)

// IndexFilename is the run index database name inside the output directory.
const IndexFilename = "runs.db"

// SQLiteIndex implements RunIndex using SQLite.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

// NewSQLiteIndex opens (or creates) the run index database.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteIndex{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteIndex) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		output_path TEXT NOT NULL,
		user_name TEXT NOT NULL,
		character_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		pair_count INTEGER NOT NULL DEFAULT 0,
		total_target INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// CreateRun records a new run.
func (s *SQLiteIndex) CreateRun(run *core.RunRecord) error {
	query := `
	INSERT INTO runs (id, output_path, user_name, character_id, scenario, status, pair_count, total_target, created_at, updated_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID,
		run.OutputPath,
		run.UserName,
		run.CharacterID,
		run.Scenario,
		run.Status,
		run.PairCount,
		run.TotalTarget,
		run.CreatedAt,
		run.UpdatedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// UpdateRun updates progress and status of an existing run.
func (s *SQLiteIndex) UpdateRun(run *core.RunRecord) error {
	run.UpdatedAt = time.Now()

	query := `
	UPDATE runs
	SET status = ?, pair_count = ?, updated_at = ?, finished_at = ?
	WHERE id = ?
	`

	res, err := s.db.Exec(query,
		run.Status,
		run.PairCount,
		run.UpdatedAt,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run is unknown.
func (s *SQLiteIndex) GetRun(id string) (*core.RunRecord, error) {
	query := `
	SELECT id, output_path, user_name, character_id, scenario, status, pair_count, total_target, created_at, updated_at, finished_at
	FROM runs
	WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns runs, newest first.
func (s *SQLiteIndex) ListRuns(limit, offset int) ([]*core.RunRecord, error) {
	query := `
	SELECT id, output_path, user_name, character_id, scenario, status, pair_count, total_target, created_at, updated_at, finished_at
	FROM runs
	ORDER BY created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DeleteRun removes a run from the index. Dataset files are left alone.
func (s *SQLiteIndex) DeleteRun(id string) error {
	if _, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.RunRecord, error) {
	var run core.RunRecord
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.OutputPath,
		&run.UserName,
		&run.CharacterID,
		&run.Scenario,
		&run.Status,
		&run.PairCount,
		&run.TotalTarget,
		&run.CreatedAt,
		&run.UpdatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

// DefaultIndexPath returns the run index path for an output directory.
func DefaultIndexPath(outputDir string) string {
	if outputDir == "" {
		outputDir = "datasets"
	}
	return filepath.Join(outputDir, IndexFilename)
}
