package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"replay/internal/config"
	"replay/internal/domain"
	"replay/internal/store"
	"replay/internal/strategy"
	"replay/internal/strategy/builtins"
)

// fakeSource serves canned bars per symbol.
type fakeSource struct {
	bars map[string][]domain.Bar
}

func (f *fakeSource) Bars(_ context.Context, symbol string, _, _ time.Time) ([]domain.Bar, error) {
	return f.bars[symbol], nil
}

func trendBars(symbol string, n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	results, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { results.Close() })

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)

	defaults := config.Backtest{
		InitialCapital: 10_000,
		StartDate:      "2024-01-01",
		EndDate:        "2024-03-31",
		DataFrequency:  "daily",
		Risk:           config.Risk{RiskFraction: 0.02, StopDistance: 0.02},
		Strategy:       config.Strategy{Name: "sma-cross", Params: map[string]float64{"short": 2, "long": 4}},
	}
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": trendBars("AAPL", 20)}}
	return NewServer(results, registry, src, defaults), results
}

func seedRun(t *testing.T, results *store.SQLiteStore, id string) {
	t.Helper()
	ctx := context.Background()
	run := &store.RunRecord{
		ID:             id,
		Strategy:       "sma-cross",
		Symbols:        []string{"AAPL"},
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10_000,
		FinalValue:     10_500,
		Status:         store.RunStatusCompleted,
		CreatedAt:      time.Now().UTC(),
	}
	run.Metrics.TotalReturn = 0.05
	if err := results.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := results.SaveFills(ctx, id, []domain.Fill{
		{Timestamp: run.StartDate, Symbol: "AAPL", Side: domain.OrderSideBuy, Qty: 10, Price: 100, OrderID: "ord-1"},
	}); err != nil {
		t.Fatalf("SaveFills: %v", err)
	}
	if err := results.SaveSnapshots(ctx, []store.SnapshotRecord{
		{RunID: id, Timestamp: run.StartDate, TotalValue: 10_000},
	}); err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func TestListRuns(t *testing.T) {
	s, results := newTestServer(t)
	seedRun(t, results, "run-1")
	h := s.Handler()

	var resp RunsResponse
	rec := doJSON(t, h, "GET", "/api/runs", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "run-1" {
		t.Fatalf("runs = %+v, want one run-1", resp.Runs)
	}
	if resp.Runs[0].TotalReturn != 0.05 {
		t.Errorf("total return = %v, want 0.05", resp.Runs[0].TotalReturn)
	}
}

func TestGetRun(t *testing.T) {
	s, results := newTestServer(t)
	seedRun(t, results, "run-1")
	h := s.Handler()

	var resp RunDetail
	rec := doJSON(t, h, "GET", "/api/runs/run-1", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.ID != "run-1" || resp.Status != store.RunStatusCompleted {
		t.Errorf("run = %s/%s, want run-1/completed", resp.ID, resp.Status)
	}
	if resp.Metrics["TotalReturn"] != 0.05 {
		t.Errorf("metrics total return = %v, want 0.05", resp.Metrics["TotalReturn"])
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/runs/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFillsAndSnapshots(t *testing.T) {
	s, results := newTestServer(t)
	seedRun(t, results, "run-1")
	h := s.Handler()

	var fills FillsResponse
	rec := doJSON(t, h, "GET", "/api/runs/run-1/fills", "", &fills)
	if rec.Code != http.StatusOK {
		t.Fatalf("fills status = %d, want 200", rec.Code)
	}
	if len(fills.Fills) != 1 || fills.Fills[0].Side != "buy" {
		t.Errorf("fills = %+v, want one buy", fills.Fills)
	}

	var snaps SnapshotsResponse
	rec = doJSON(t, h, "GET", "/api/runs/run-1/snapshots", "", &snaps)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshots status = %d, want 200", rec.Code)
	}
	if len(snaps.Snapshots) != 1 || snaps.Snapshots[0].TotalValue != 10_000 {
		t.Errorf("snapshots = %+v, want one at 10000", snaps.Snapshots)
	}
}

func TestStrategies(t *testing.T) {
	s, _ := newTestServer(t)

	var resp StrategiesResponse
	rec := doJSON(t, s.Handler(), "GET", "/api/strategies", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(resp.Strategies) != 2 {
		t.Errorf("strategies = %v, want [rsi sma-cross]", resp.Strategies)
	}
}

func TestStartRun(t *testing.T) {
	s, results := newTestServer(t)
	h := s.Handler()

	var resp StartRunResponse
	rec := doJSON(t, h, "POST", "/api/runs", `{"symbols": ["AAPL"]}`, &resp)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202\n%s", rec.Code, rec.Body.String())
	}
	if resp.RunID == "" {
		t.Fatal("run_id is empty")
	}

	// The run detaches; poll the store until it reaches a terminal state.
	deadline := time.Now().Add(5 * time.Second)
	for {
		run, err := results.GetRun(context.Background(), resp.RunID)
		if err == nil && (run.Status == store.RunStatusCompleted || run.Status == store.RunStatusFailed) {
			if run.Status != store.RunStatusCompleted {
				t.Fatalf("run finished %s: %s", run.Status, run.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartRun_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	// Unknown strategy.
	rec := doJSON(t, h, "POST", "/api/runs", `{"strategy": "nope", "symbols": ["AAPL"]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown strategy status = %d, want 400", rec.Code)
	}

	// Missing symbols (defaults carry none).
	rec = doJSON(t, h, "POST", "/api/runs", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing symbols status = %d, want 400", rec.Code)
	}

	// Malformed body.
	rec = doJSON(t, h, "POST", "/api/runs", `{not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}
