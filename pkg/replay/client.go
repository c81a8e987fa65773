// Package replay provides a Go client for the replay-server API.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running replay-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RunSummary is one row of the run list.
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

// RunDetail is one run with its full metrics.
type RunDetail struct {
	RunSummary
	Error   string         `json:"error,omitempty"`
	Metrics map[string]any `json:"metrics"`
}

// Fill is one executed trade.
type Fill struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	OrderID    string    `json:"order_id"`
}

// Snapshot is one periodic portfolio mark.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalValue float64   `json:"total_value"`
	Drawdown   float64   `json:"drawdown"`
}

// StartRunRequest configures a new run; unset fields use the server's
// configured defaults.
type StartRunRequest struct {
	Strategy       string             `json:"strategy,omitempty"`
	Params         map[string]float64 `json:"params,omitempty"`
	Symbols        []string           `json:"symbols,omitempty"`
	StartDate      string             `json:"start_date,omitempty"`
	EndDate        string             `json:"end_date,omitempty"`
	InitialCapital float64            `json:"initial_capital,omitempty"`
	Benchmark      string             `json:"benchmark,omitempty"`
}

// StartRunResponse acknowledges an accepted run.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ListRuns returns up to limit recent runs, newest first. limit <= 0 uses the
// server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Runs []RunSummary `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun returns one run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	var run RunDetail
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetFills returns a run's fills in chronological order.
func (c *Client) GetFills(ctx context.Context, id string) ([]Fill, error) {
	var resp struct {
		Fills []Fill `json:"fills"`
	}
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/fills", &resp); err != nil {
		return nil, err
	}
	return resp.Fills, nil
}

// GetSnapshots returns a run's equity curve.
func (c *Client) GetSnapshots(ctx context.Context, id string) ([]Snapshot, error) {
	var resp struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/snapshots", &resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

// Strategies returns the registered strategy names.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var resp struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.get(ctx, "/api/strategies", &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// StartRun submits a new run and returns its ID. The run executes
// asynchronously; poll GetRun until the status is terminal.
func (c *Client) StartRun(ctx context.Context, req StartRunRequest) (*StartRunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp)
	}
	var out StartRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
