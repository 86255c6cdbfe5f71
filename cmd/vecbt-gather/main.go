package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vecbt/internal/config"
	"vecbt/internal/engine"
	"vecbt/internal/gather/us"
	"vecbt/internal/store"
	"vecbt/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/vecbt.yaml", "path to YAML config")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides gather.symbols")
	batch := flag.Int("batch", 100, "symbols per Alpaca request")
	workers := flag.Int("workers", 4, "concurrent batches")
	flag.Parse()
	if p := os.Getenv("VECBT_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbols != "" {
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}
	if len(cfg.Gather.Symbols) == 0 {
		log.Fatal("no symbols configured: set gather.symbols or -symbols")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	fetcher, err := engine.NewAlpacaFetcher(cfg, logger)
	if err != nil {
		log.Fatalf("creating fetcher: %v", err)
	}
	calendar := us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)

	gatherer := us.NewDailyBarGatherer(fetcher, store.NewParquetStore(cfg.Storage.DataDir), us.GathererOptions{
		Symbols:     cfg.Gather.Symbols,
		StartDate:   cfg.Gather.StartDate,
		BatchSize:   *batch,
		MaxWorkers:  *workers,
		ProgressDir: filepath.Join(cfg.Storage.DataDir, store.DefaultMarket, "progress"),
		EndDate: func(context.Context) (time.Time, error) {
			return us.LatestFinishedTradingDay(calendar, time.Now())
		},
		Logger: logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gather", "gatherer", gatherer.Name(), "symbols", len(cfg.Gather.Symbols))
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
