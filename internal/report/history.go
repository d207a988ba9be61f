package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	aoi         TEXT NOT NULL,
	start_year  INTEGER NOT NULL,
	end_year    INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	succeeded   INTEGER NOT NULL,
	empty       INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_months (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	month         TEXT NOT NULL,
	status        TEXT NOT NULL,
	scene_count   INTEGER NOT NULL,
	contamination REAL NOT NULL,
	is_no_data    INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, month)
);
`

// RunRecord is a stored run without its months.
type RunRecord struct {
	ID         string
	AOI        string
	StartYear  int
	EndYear    int
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Empty      int
	Failed     int
}

// History keeps past run summaries in a SQLite database.
type History struct {
	db *sql.DB
}

func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Record stores a summary and its months in one transaction.
func (h *History) Record(ctx context.Context, s Summary) error {
	return h.transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, aoi, start_year, end_year, started_at, finished_at, succeeded, empty, failed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, s.AOI, s.StartYear, s.EndYear, s.StartedAt.UTC(), s.FinishedAt.UTC(),
			len(s.Succeeded), len(s.Empty), len(s.Failed))
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", s.RunID, err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_months (run_id, month, status, scene_count, contamination, is_no_data, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare month insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range s.Months {
			if _, err := stmt.ExecContext(ctx, s.RunID, row.Month, row.Status, row.SceneCount, row.Contamination, row.IsNoData, row.Error); err != nil {
				return fmt.Errorf("failed to insert month %s: %w", row.Month, err)
			}
		}
		return nil
	})
}

// Runs returns the most recent runs first.
func (h *History) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, aoi, start_year, end_year, started_at, finished_at, succeeded, empty, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.AOI, &r.StartYear, &r.EndYear, &r.StartedAt, &r.FinishedAt, &r.Succeeded, &r.Empty, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (h *History) Months(ctx context.Context, runID string) ([]MonthRow, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT month, status, scene_count, contamination, is_no_data, error
		 FROM run_months WHERE run_id = ? ORDER BY month`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query months of run %s: %w", runID, err)
	}
	defer rows.Close()

	var months []MonthRow
	for rows.Next() {
		var m MonthRow
		if err := rows.Scan(&m.Month, &m.Status, &m.SceneCount, &m.Contamination, &m.IsNoData, &m.Error); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}
