package httpapi

import "time"

// RunSummary is the list-view JSON shape of one run.
type RunSummary struct {
	ID             string    `json:"id"`
	Strategy       string    `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	TotalReturn    float64   `json:"total_return"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunsResponse wraps the run list.
type RunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RunDetail is the full JSON shape of one run, metrics included.
type RunDetail struct {
	RunSummary
	Error   string         `json:"error,omitempty"`
	Metrics map[string]any `json:"metrics"`
}

// FillJSON is one fill row.
type FillJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	OrderID    string    `json:"order_id"`
}

// FillsResponse wraps a run's fills.
type FillsResponse struct {
	RunID string     `json:"run_id"`
	Fills []FillJSON `json:"fills"`
}

// SnapshotJSON is one periodic portfolio mark.
type SnapshotJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalValue float64   `json:"total_value"`
	Drawdown   float64   `json:"drawdown"`
}

// SnapshotsResponse wraps a run's snapshots.
type SnapshotsResponse struct {
	RunID     string         `json:"run_id"`
	Snapshots []SnapshotJSON `json:"snapshots"`
}

// StrategiesResponse lists the registered strategy names.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// StartRunRequest is the POST /api/runs body. Unset fields fall back to the
// server's configured defaults.
type StartRunRequest struct {
	Strategy       string             `json:"strategy"`
	Params         map[string]float64 `json:"params"`
	Symbols        []string           `json:"symbols"`
	StartDate      string             `json:"start_date"`
	EndDate        string             `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`
	Benchmark      string             `json:"benchmark"`
}

// StartRunResponse acknowledges an accepted run.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
