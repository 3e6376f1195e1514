// Package store persists refresh run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver
)

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended connection settings.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Run is one completed refresh recorded for history.
type Run struct {
	ID          string       `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	DatasetPath string       `json:"dataset_path"`
	DatasetSHA  string       `json:"dataset_sha256"`
	Points      int          `json:"points"`
	Dimensions  int          `json:"dimensions"`
	Groups      []GroupStats `json:"groups"`
}

// GroupStats summarizes one listener group inside a run.
type GroupStats struct {
	Group      string  `json:"group"`
	Listeners  int     `json:"listeners"`
	Stress     float64 `json:"stress"`
	Stress1    float64 `json:"stress1"`
	Iterations int     `json:"iterations"`
}

// Store wraps the runs database.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite connection pool with mandatory PRAGMAs and
// creates the schema when missing.
func Open(dbPath string, cfg Config) (*Store, error) {
	// _pragma in the DSN applies to every connection in the pool.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL,
	dataset_path  TEXT NOT NULL,
	dataset_sha   TEXT NOT NULL,
	points        INTEGER NOT NULL,
	dimensions    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_groups (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	grp         TEXT NOT NULL,
	listeners   INTEGER NOT NULL,
	stress      REAL NOT NULL,
	stress1     REAL NOT NULL,
	iterations  INTEGER NOT NULL,
	stats       TEXT NOT NULL,
	PRIMARY KEY (run_id, grp)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate failed: %w", err)
	}
	return nil
}

// RecordRun stores a finished run. A zero ID is replaced with a fresh UUID.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, dataset_path, dataset_sha, points, dimensions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.DatasetPath, run.DatasetSHA, run.Points, run.Dimensions)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, g := range run.Groups {
		stats, err := json.Marshal(g)
		if err != nil {
			return "", fmt.Errorf("marshal group stats: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_groups (run_id, grp, listeners, stress, stress1, iterations, stats)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, g.Group, g.Listeners, g.Stress, g.Stress1, g.Iterations, string(stats))
		if err != nil {
			return "", fmt.Errorf("insert run group: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run tx: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dataset_path, dataset_sha, points, dimensions
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.DatasetPath, &r.DatasetSHA, &r.Points, &r.Dimensions); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range runs {
		groups, err := s.runGroups(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Groups = groups
	}
	return runs, nil
}

// LatestRun returns the most recent run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *Store) runGroups(ctx context.Context, runID string) ([]GroupStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT grp, listeners, stress, stress1, iterations FROM run_groups WHERE run_id = ? ORDER BY grp`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GroupStats
	for rows.Next() {
		var g GroupStats
		if err := rows.Scan(&g.Group, &g.Listeners, &g.Stress, &g.Stress1, &g.Iterations); err != nil {
			return nil, fmt.Errorf("scan run group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs. keep <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
