package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"replay/internal/backtest"
	"replay/internal/config"
	"replay/internal/marketdata"
	"replay/internal/report"
	"replay/internal/store"
	"replay/internal/strategy"
	"replay/internal/strategy/builtins"
	"replay/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "path to replay.yaml (default config/replay.yaml, or $REPLAY_CONFIG)")
	stratName := flag.String("strategy", "", "strategy name (overrides config)")
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides config)")
	startDate := flag.String("start", "", "start date YYYY-MM-DD (overrides config)")
	endDate := flag.String("end", "", "end date YYYY-MM-DD (overrides config)")
	listStrategies := flag.Bool("list-strategies", false, "list registered strategies and exit")
	noReport := flag.Bool("no-report", false, "skip the HTML report")
	flag.Parse()

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)

	if *listStrategies {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}

	path := *cfgPath
	if path == "" {
		path = "config/replay.yaml"
		if p := os.Getenv("REPLAY_CONFIG"); p != "" {
			path = p
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	bt := cfg.Backtest
	if *stratName != "" {
		bt.Strategy.Name = *stratName
		bt.Strategy.Params = nil
	}
	if *symbols != "" {
		bt.Symbols = strings.Split(*symbols, ",")
	}
	if *startDate != "" {
		bt.StartDate = *startDate
	}
	if *endDate != "" {
		bt.EndDate = *endDate
	}

	if len(bt.Symbols) == 0 {
		log.Fatal("no symbols configured; set backtest.symbols or pass -symbols")
	}
	start, end, err := bt.Period()
	if err != nil {
		log.Fatalf("invalid period: %v", err)
	}

	strat, err := registry.Build(bt.Strategy.Name, strategy.Params(bt.Strategy.Params))
	if err != nil {
		log.Fatalf("building strategy: %v", err)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	// Without Alpaca credentials the run is cache-only.
	var upstream marketdata.BarSource
	if cfg.Alpaca.APIKey != "" {
		upstream, err = marketdata.NewAlpacaSource(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			bt.DataFrequency, cfg.Alpaca.Feed)
		if err != nil {
			log.Fatalf("configuring alpaca source: %v", err)
		}
	}
	source := marketdata.NewCachedSource(upstream, bars, bt.DataFrequency)

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
	}, strat, source, results)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := o.Run(ctx)
	if err != nil {
		log.Fatalf("run error: %v", err)
	}

	printSummary(res, bt.InitialCapital)

	if !*noReport {
		reportDir := bt.ReportDir
		if reportDir == "" {
			reportDir = "reports"
		}
		reportPath := filepath.Join(reportDir, res.RunID+".html")
		err := report.RenderFile(reportPath, report.Input{
			RunID:    res.RunID,
			Strategy: bt.Strategy.Name,
			Metrics:  res.Metrics,
			Snapshot: res.Snapshot,
		})
		if err != nil {
			log.Fatalf("writing report: %v", err)
		}
		fmt.Printf("\nreport: %s\n", reportPath)
	}
}

func printSummary(res *backtest.Result, initialCapital float64) {
	m := res.Metrics
	fmt.Printf("run %s finished\n\n", res.RunID)
	fmt.Printf("  initial capital    %12.2f\n", initialCapital)
	fmt.Printf("  final value        %12.2f\n", res.Snapshot.TotalValue)
	fmt.Printf("  total return       %11.2f%%\n", m.TotalReturn*100)
	fmt.Printf("  annualized return  %11.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("  volatility         %11.2f%%\n", m.Volatility*100)
	fmt.Printf("  sharpe ratio       %12.2f\n", m.SharpeRatio)
	fmt.Printf("  sortino ratio      %12.2f\n", m.SortinoRatio)
	fmt.Printf("  max drawdown       %11.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("  trades             %12d\n", m.TotalTrades)
	if m.TotalTrades > 0 {
		fmt.Printf("  win rate           %11.2f%%\n", m.WinRate*100)
		fmt.Printf("  profit factor      %12.2f\n", m.ProfitFactor)
	}
}
