package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"replay/internal/config"
	"replay/internal/httpapi"
	"replay/internal/marketdata"
	"replay/internal/store"
	"replay/internal/strategy"
	"replay/internal/strategy/builtins"
	"replay/internal/util"
)

func main() {
	cfgPath := "config/replay.yaml"
	if p := os.Getenv("REPLAY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	var upstream marketdata.BarSource
	if cfg.Alpaca.APIKey != "" {
		upstream, err = marketdata.NewAlpacaSource(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			cfg.Backtest.DataFrequency, cfg.Alpaca.Feed)
		if err != nil {
			log.Fatalf("configuring alpaca source: %v", err)
		}
	}
	source := marketdata.NewCachedSource(upstream, bars, cfg.Backtest.DataFrequency)

	server := httpapi.NewServer(results, registry, source, cfg.Backtest)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("replay-server listening", "addr", addr)
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
