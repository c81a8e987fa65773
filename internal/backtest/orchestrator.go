// Package backtest composes the event queue, execution handler, ledger, and
// analytics into a complete simulation run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"replay/internal/analytics"
	"replay/internal/domain"
	"replay/internal/event"
	"replay/internal/execution"
	"replay/internal/marketdata"
	"replay/internal/portfolio"
	"replay/internal/store"
	"replay/internal/strategy"
)

// Status is the run lifecycle state. Pending and Running are transient;
// Completed and Failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Config describes one run.
type Config struct {
	RunID          string // generated when empty
	Symbols        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	CommissionRate float64
	CommissionMin  float64
	SlippageRate   float64
	FillLatency    time.Duration
	RiskFraction   float64
	StopDistance   float64
	RiskFreeRate   float64
	Frequency      string
	StrategyName   string // recorded on the run, informational

	// Benchmark enables benchmark-relative metrics; its bars come from the
	// same source as the traded symbols.
	Benchmark string
}

// Result is the output of one run: derived metrics plus the raw material
// they were computed from.
type Result struct {
	RunID    string
	Status   Status
	Metrics  analytics.Metrics
	Fills    []domain.Fill
	Snapshot portfolio.Snapshot
}

// Orchestrator owns the run lifecycle: load bars, drain the queue, compute
// metrics, persist.
type Orchestrator struct {
	cfg     Config
	strat   strategy.Strategy
	source  marketdata.BarSource
	results store.ResultStore // nil disables persistence
	status  Status
	log     *slog.Logger
}

// New creates an Orchestrator in the Pending state. results may be nil, in
// which case the run is not persisted.
func New(cfg Config, strat strategy.Strategy, source marketdata.BarSource, results store.ResultStore) *Orchestrator {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Orchestrator{
		cfg:     cfg,
		strat:   strat,
		source:  source,
		results: results,
		status:  StatusPending,
		log:     slog.Default().With("component", "backtest", "run", cfg.RunID),
	}
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status { return o.status }

// RunID returns the run's identifier.
func (o *Orchestrator) RunID() string { return o.cfg.RunID }

// Run executes the backtest to completion. The returned Result is non-nil
// whenever the simulation itself finished; a persistence failure is returned
// as the error alongside the fully computed Result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.status = StatusRunning
	started := time.Now().UTC()
	o.saveRunState(ctx, started, store.RunStatusRunning, 0, analytics.Metrics{}, "")

	res, runErr := o.run(ctx)
	if runErr != nil {
		o.status = StatusFailed
		o.saveRunState(ctx, started, store.RunStatusFailed, 0, analytics.Metrics{}, runErr.Error())
		return &Result{RunID: o.cfg.RunID, Status: StatusFailed}, runErr
	}

	o.status = StatusCompleted
	res.Status = StatusCompleted

	if err := o.persist(ctx, started, res); err != nil {
		// The metrics are already computed; report the failure, keep them.
		o.log.Error("persisting result failed", "err", err)
		return res, fmt.Errorf("run %s completed but persisting failed: %w", o.cfg.RunID, err)
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	loadSymbols := o.cfg.Symbols
	if o.cfg.Benchmark != "" && !contains(loadSymbols, o.cfg.Benchmark) {
		loadSymbols = append(append([]string(nil), loadSymbols...), o.cfg.Benchmark)
	}

	series, err := marketdata.LoadAll(ctx, o.source, loadSymbols, o.cfg.Start, o.cfg.End)
	if err != nil {
		return nil, err
	}

	queue := event.NewQueue()
	var loaded int
	for _, symbol := range o.cfg.Symbols {
		bars := series[symbol]
		if len(bars) == 0 {
			o.log.Warn("no bars for symbol", "symbol", symbol)
			continue
		}
		queue.LoadMarketData(symbol, bars)
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no bars loaded for any of %v", o.cfg.Symbols)
	}

	commission := execution.PerTradeCommission(o.cfg.CommissionRate, o.cfg.CommissionMin)
	handler := execution.NewHandler(queue, commission, execution.SimpleSlippage{Rate: o.cfg.SlippageRate}, o.cfg.FillLatency)
	ledger := portfolio.NewLedger(o.cfg.InitialCapital, queue, commission)
	sizer := strategy.NewSizer(o.cfg.RiskFraction, o.cfg.StopDistance)

	if err := o.strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("strategy init: %w", err)
	}

	var (
		fills  []domain.Fill
		events int
	)
	for {
		ev, ok := queue.Dequeue()
		if !ok {
			break
		}
		events++

		switch e := ev.(type) {
		case event.Market:
			ledger.MarkToMarket(e.Bar.Timestamp)
			sigs, err := o.strat.OnBar(ctx, e.Bar)
			if err != nil {
				return nil, fmt.Errorf("strategy on bar %s %s: %w",
					e.Bar.Symbol, e.Bar.Timestamp.Format("2006-01-02"), err)
			}
			for _, sig := range sigs {
				// Signals inherit the bar's timestamp and sort right after it.
				sig.Timestamp = e.Bar.Timestamp
				queue.Enqueue(event.SignalEvent{Signal: sig})
			}

		case event.SignalEvent:
			o.handleSignal(queue, ledger, handler, sizer, e.Signal)

		case event.OrderEvent:
			o.handleOrder(queue, handler, e.Order)

		case event.FillEvent:
			ledger.ProcessFill(&e.Fill)
			fills = append(fills, e.Fill)
		}
	}

	snap := ledger.Snapshot()
	params := analytics.Params{
		InitialCapital: o.cfg.InitialCapital,
		RiskFreeRate:   o.cfg.RiskFreeRate,
	}
	if o.cfg.Benchmark != "" {
		params.BenchmarkReturns = barReturns(series[o.cfg.Benchmark])
	}

	o.log.Info("run finished",
		"events", events,
		"fills", len(fills),
		"finalValue", snap.TotalValue,
	)

	return &Result{
		RunID:    o.cfg.RunID,
		Metrics:  analytics.Calculate(snap, fills, params),
		Fills:    fills,
		Snapshot: snap,
	}, nil
}

// handleSignal sizes the signal and enqueues the resulting order. Unaffordable
// or zero-quantity signals are dropped with a log line, never an error.
func (o *Orchestrator) handleSignal(queue *event.Queue, ledger *portfolio.Ledger, handler *execution.Handler, sizer strategy.Sizer, sig domain.Signal) {
	price, ok := queue.CloseAsOf(sig.Symbol, sig.Timestamp)
	if !ok {
		o.log.Warn("signal dropped: no price", "symbol", sig.Symbol, "ts", sig.Timestamp)
		return
	}

	var posQty float64
	if pos, ok := ledger.Position(sig.Symbol); ok {
		posQty = pos.Qty
	}

	order, ok := sizer.BuildOrder(sig, ledger.TotalValue(), price, posQty)
	if !ok {
		o.log.Debug("signal produced no order", "symbol", sig.Symbol, "direction", sig.Direction)
		return
	}

	if order.Side == domain.OrderSideBuy {
		est, err := handler.EstimateFillPrice(&order)
		if err != nil || !ledger.CanAfford(order.Qty, est) {
			o.log.Warn("signal dropped: unaffordable",
				"symbol", sig.Symbol, "qty", order.Qty, "price", price)
			return
		}
	}
	queue.Enqueue(event.OrderEvent{Order: order})
}

// handleOrder executes the order. An untriggered limit/stop order rolls
// forward to the symbol's next bar; other rejections drop the order with a
// log line.
func (o *Orchestrator) handleOrder(queue *event.Queue, handler *execution.Handler, order domain.Order) {
	fill, err := handler.ExecuteOrder(&order)
	if err != nil {
		if errors.Is(err, execution.ErrNotTriggered) {
			if next, ok := queue.NextBarAfter(order.Symbol, order.Timestamp); ok {
				order.Timestamp = next.Timestamp
				queue.Enqueue(event.OrderEvent{Order: order})
				return
			}
			o.log.Info("order expired untriggered", "symbol", order.Symbol, "type", order.Type)
			return
		}
		o.log.Warn("order rejected", "symbol", order.Symbol, "err", err)
		return
	}
	queue.Enqueue(event.FillEvent{Fill: *fill})
}

// saveRunState best-effort persists the run's lifecycle state.
func (o *Orchestrator) saveRunState(ctx context.Context, started time.Time, status string, finalValue float64, m analytics.Metrics, errMsg string) {
	if o.results == nil {
		return
	}
	rec := &store.RunRecord{
		ID:             o.cfg.RunID,
		Strategy:       o.cfg.StrategyName,
		Symbols:        o.cfg.Symbols,
		StartDate:      o.cfg.Start,
		EndDate:        o.cfg.End,
		InitialCapital: o.cfg.InitialCapital,
		FinalValue:     finalValue,
		Status:         status,
		Error:          errMsg,
		CreatedAt:      started,
		Metrics:        m,
	}
	if err := o.results.SaveRun(ctx, rec); err != nil {
		o.log.Error("saving run state failed", "status", status, "err", err)
	}
}

// persist writes the completed run, its fills, and its snapshots.
func (o *Orchestrator) persist(ctx context.Context, started time.Time, res *Result) error {
	if o.results == nil {
		return nil
	}
	rec := &store.RunRecord{
		ID:             o.cfg.RunID,
		Strategy:       o.cfg.StrategyName,
		Symbols:        o.cfg.Symbols,
		StartDate:      o.cfg.Start,
		EndDate:        o.cfg.End,
		InitialCapital: o.cfg.InitialCapital,
		FinalValue:     res.Snapshot.TotalValue,
		Status:         store.RunStatusCompleted,
		CreatedAt:      started,
		Metrics:        res.Metrics,
	}
	if err := o.results.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	if err := o.results.SaveFills(ctx, o.cfg.RunID, res.Fills); err != nil {
		return fmt.Errorf("saving fills: %w", err)
	}

	snaps := make([]store.SnapshotRecord, 0, len(res.Snapshot.EquityCurve))
	for i, pt := range res.Snapshot.EquityCurve {
		rec := store.SnapshotRecord{
			RunID:      o.cfg.RunID,
			Timestamp:  pt.Timestamp,
			TotalValue: pt.Value,
		}
		if i < len(res.Snapshot.Drawdowns) {
			rec.Drawdown = res.Snapshot.Drawdowns[i].Drawdown
		}
		snaps = append(snaps, rec)
	}
	if err := o.results.SaveSnapshots(ctx, snaps); err != nil {
		return fmt.Errorf("saving snapshots: %w", err)
	}
	return nil
}

// barReturns converts a bar series into per-bar returns: open-to-close on the
// first bar, close-to-close after. This lines up with the ledger, which marks
// a return on every bar starting from the first.
func barReturns(bars []domain.Bar) []float64 {
	if len(bars) == 0 {
		return nil
	}
	out := make([]float64, 0, len(bars))
	if bars[0].Open > 0 {
		out = append(out, (bars[0].Close-bars[0].Open)/bars[0].Open)
	} else {
		out = append(out, 0)
	}
	for i := 1; i < len(bars); i++ {
		if prev := bars[i-1].Close; prev > 0 {
			out = append(out, (bars[i].Close-prev)/prev)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
