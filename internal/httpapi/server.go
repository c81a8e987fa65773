// Package httpapi exposes finished runs and starts new ones over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"replay/internal/backtest"
	"replay/internal/config"
	"replay/internal/marketdata"
	"replay/internal/store"
	"replay/internal/strategy"
)

// Server serves the run-browsing API.
type Server struct {
	results  store.ResultStore
	registry *strategy.Registry
	source   marketdata.BarSource
	defaults config.Backtest
	log      *slog.Logger
}

// NewServer creates a Server. defaults supplies the simulation parameters a
// StartRunRequest leaves unset.
func NewServer(results store.ResultStore, registry *strategy.Registry, source marketdata.BarSource, defaults config.Backtest) *Server {
	return &Server{
		results:  results,
		registry: registry,
		source:   source,
		defaults: defaults,
		log:      slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/fills", s.handleFills)
	mux.HandleFunc("GET /api/runs/{id}/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/runs", s.handleStartRun)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func summaryOf(run *store.RunRecord) RunSummary {
	return RunSummary{
		ID:             run.ID,
		Strategy:       run.Strategy,
		Symbols:        run.Symbols,
		StartDate:      run.StartDate.Format("2006-01-02"),
		EndDate:        run.EndDate.Format("2006-01-02"),
		InitialCapital: run.InitialCapital,
		FinalValue:     run.FinalValue,
		TotalReturn:    run.Metrics.TotalReturn,
		Status:         run.Status,
		CreatedAt:      run.CreatedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.results.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := RunsResponse{Runs: make([]RunSummary, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, summaryOf(&runs[i]))
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.results.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error("getting run", "run", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	// Round-trip through JSON to expose metrics as a generic object.
	var metrics map[string]any
	raw, _ := json.Marshal(run.Metrics)
	json.Unmarshal(raw, &metrics)

	writeJSON(w, RunDetail{
		RunSummary: summaryOf(run),
		Error:      run.Error,
		Metrics:    metrics,
	})
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fills, err := s.results.ListFills(r.Context(), id)
	if err != nil {
		s.log.Error("listing fills", "run", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	resp := FillsResponse{RunID: id, Fills: make([]FillJSON, 0, len(fills))}
	for _, f := range fills {
		resp.Fills = append(resp.Fills, FillJSON{
			Timestamp:  f.Timestamp,
			Symbol:     f.Symbol,
			Side:       string(f.Side),
			Qty:        f.Qty,
			Price:      f.Price,
			Commission: f.Commission,
			Slippage:   f.Slippage,
			OrderID:    f.OrderID,
		})
	}
	writeJSON(w, resp)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snaps, err := s.results.ListSnapshots(r.Context(), id)
	if err != nil {
		s.log.Error("listing snapshots", "run", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	resp := SnapshotsResponse{RunID: id, Snapshots: make([]SnapshotJSON, 0, len(snaps))}
	for _, snap := range snaps {
		resp.Snapshots = append(resp.Snapshots, SnapshotJSON{
			Timestamp:  snap.Timestamp,
			TotalValue: snap.TotalValue,
			Drawdown:   snap.Drawdown,
		})
	}
	writeJSON(w, resp)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StrategiesResponse{Strategies: s.registry.List()})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bt := s.defaults
	if req.Strategy != "" {
		bt.Strategy.Name = req.Strategy
		bt.Strategy.Params = req.Params
	}
	if len(req.Symbols) > 0 {
		bt.Symbols = req.Symbols
	}
	if req.StartDate != "" {
		bt.StartDate = req.StartDate
	}
	if req.EndDate != "" {
		bt.EndDate = req.EndDate
	}
	if req.InitialCapital > 0 {
		bt.InitialCapital = req.InitialCapital
	}
	if req.Benchmark != "" {
		bt.Benchmark = req.Benchmark
	}

	if len(bt.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols required")
		return
	}
	start, end, err := bt.Period()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	strat, err := s.registry.Build(bt.Strategy.Name, strategy.Params(bt.Strategy.Params))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o := backtest.New(backtest.Config{
		Symbols:        bt.Symbols,
		Start:          start,
		End:            end,
		InitialCapital: bt.InitialCapital,
		CommissionRate: bt.CommissionRate,
		CommissionMin:  bt.CommissionMin,
		SlippageRate:   bt.SlippageRate,
		RiskFraction:   bt.Risk.RiskFraction,
		StopDistance:   bt.Risk.StopDistance,
		RiskFreeRate:   bt.RiskFreeRate,
		Frequency:      bt.DataFrequency,
		StrategyName:   bt.Strategy.Name,
		Benchmark:      bt.Benchmark,
	}, strat, s.source, s.results)

	// The run detaches from the request; its state is visible via GET.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := o.Run(ctx); err != nil {
			s.log.Error("run failed", "err", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartRunResponse{RunID: o.RunID(), Status: string(o.Status())})
}
