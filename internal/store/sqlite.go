package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"replay/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	strategy        TEXT NOT NULL,
	symbols         TEXT NOT NULL,
	start_date      INTEGER NOT NULL,
	end_date        INTEGER NOT NULL,
	initial_capital REAL NOT NULL,
	final_value     REAL NOT NULL,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	metrics         TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS fills (
	run_id     TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	qty        REAL NOT NULL,
	price      REAL NOT NULL,
	commission REAL NOT NULL,
	slippage   REAL NOT NULL,
	order_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, ts);

CREATE TABLE IF NOT EXISTS snapshots (
	run_id      TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	total_value REAL NOT NULL,
	drawdown    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, ts);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, strategy, symbols, start_date, end_date, initial_capital,
			 final_value, status, error, created_at, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, strings.Join(run.Symbols, ","),
		run.StartDate.UnixMilli(), run.EndDate.UnixMilli(),
		run.InitialCapital, run.FinalValue, run.Status, run.Error,
		run.CreatedAt.UnixMilli(), string(metrics),
	)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date, initial_capital,
		       final_value, status, error, created_at, metrics
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date, initial_capital,
		       final_value, status, error, created_at, metrics
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run                  RunRecord
		symbols, metricsJSON string
		startMs, endMs       int64
		createdMs            int64
	)
	err := row.Scan(&run.ID, &run.Strategy, &symbols, &startMs, &endMs,
		&run.InitialCapital, &run.FinalValue, &run.Status, &run.Error,
		&createdMs, &metricsJSON)
	if err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.StartDate = time.UnixMilli(startMs).UTC()
	run.EndDate = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics for run %s: %w", run.ID, err)
	}
	return &run, nil
}

// SaveFills persists a run's fills in one transaction.
func (s *SQLiteStore) SaveFills(ctx context.Context, runID string, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fills (run_id, ts, symbol, side, qty, price, commission, slippage, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range fills {
		if _, err := stmt.ExecContext(ctx, runID, f.Timestamp.UnixMilli(),
			f.Symbol, string(f.Side), f.Qty, f.Price, f.Commission, f.Slippage, f.OrderID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListFills returns a run's fills in chronological order.
func (s *SQLiteStore) ListFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, symbol, side, qty, price, commission, slippage, order_id
		FROM fills WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var (
			f    domain.Fill
			ms   int64
			side string
		)
		if err := rows.Scan(&ms, &f.Symbol, &side, &f.Qty, &f.Price,
			&f.Commission, &f.Slippage, &f.OrderID); err != nil {
			return nil, err
		}
		f.Timestamp = time.UnixMilli(ms).UTC()
		f.Side = domain.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// SaveSnapshots persists a run's periodic snapshots in one transaction.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, snapshots []SnapshotRecord) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (run_id, ts, total_value, drawdown)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, snap.RunID, snap.Timestamp.UnixMilli(),
			snap.TotalValue, snap.Drawdown); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSnapshots returns a run's snapshots in chronological order.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, total_value, drawdown
		FROM snapshots WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []SnapshotRecord
	for rows.Next() {
		var (
			snap SnapshotRecord
			ms   int64
		)
		if err := rows.Scan(&ms, &snap.TotalValue, &snap.Drawdown); err != nil {
			return nil, err
		}
		snap.RunID = runID
		snap.Timestamp = time.UnixMilli(ms).UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
