// Package store persists bar data and finished run results. Bars live in
// Parquet files on disk; run results live in SQLite.
package store

import (
	"context"
	"time"

	"replay/internal/analytics"
	"replay/internal/domain"
)

// Run lifecycle states as persisted.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is the run-level row: configuration, lifecycle state, and the
// derived metrics for completed runs.
type RunRecord struct {
	ID             string
	Strategy       string
	Symbols        []string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	FinalValue     float64
	Status         string
	Error          string
	CreatedAt      time.Time
	Metrics        analytics.Metrics
}

// SnapshotRecord is one periodic portfolio mark for a run.
type SnapshotRecord struct {
	RunID      string
	Timestamp  time.Time
	TotalValue float64
	Drawdown   float64
}

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given frequency.
	WriteBars(ctx context.Context, frequency string, bars []domain.Bar) error

	// ReadBars returns bars for the symbol and frequency within [start, end].
	ReadBars(ctx context.Context, symbol, frequency string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols cached at the given frequency.
	ListSymbols(ctx context.Context, frequency string) ([]string, error)
}

// ResultStore persists finished runs: run-level metrics, individual fills,
// and periodic portfolio snapshots.
type ResultStore interface {
	// SaveRun inserts or replaces a run record.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a run by ID. Returns sql.ErrNoRows when absent.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// SaveFills persists a run's fills.
	SaveFills(ctx context.Context, runID string, fills []domain.Fill) error

	// ListFills returns a run's fills in chronological order.
	ListFills(ctx context.Context, runID string) ([]domain.Fill, error)

	// SaveSnapshots persists a run's periodic portfolio snapshots.
	SaveSnapshots(ctx context.Context, snapshots []SnapshotRecord) error

	// ListSnapshots returns a run's snapshots in chronological order.
	ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error)
}
