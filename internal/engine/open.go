package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vecbt/internal/config"
	"vecbt/internal/gather"
	"vecbt/internal/gather/us"
	"vecbt/internal/store"
	"vecbt/internal/strategy/builtins"
)

// Stack is an Engine together with the stores it was opened on.
type Stack struct {
	Engine *Engine
	Bars   *store.ParquetStore
	Runs   *store.SQLiteStore
}

// Open builds the engine described by cfg: the Parquet store for bars and
// result tables, the SQLite run index, and the price source selected by
// cfg.Backtest.Source.
func Open(cfg *config.Config, log *slog.Logger) (*Stack, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite dir: %w", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	fetcher, err := NewFetcher(cfg, bars, log)
	if err != nil {
		runs.Close()
		return nil, err
	}
	log.Info("engine opened",
		"source", cfg.Backtest.Source,
		"data_dir", cfg.Storage.DataDir,
		"sqlite", cfg.Storage.SQLitePath,
	)
	return &Stack{
		Engine: NewEngine(fetcher, builtins.NewRegistry(), runs, bars, log),
		Bars:   bars,
		Runs:   runs,
	}, nil
}

// Close releases the run store.
func (s *Stack) Close() error { return s.Runs.Close() }

// NewFetcher returns the price source named by cfg.Backtest.Source.
func NewFetcher(cfg *config.Config, bars store.BarStore, log *slog.Logger) (gather.PriceFetcher, error) {
	switch cfg.Backtest.Source {
	case config.SourceParquet, "":
		market := cfg.Storage.Market
		if market == "" {
			market = store.DefaultMarket
		}
		return gather.NewStoreFetcher(bars, market), nil
	case config.SourceAlpaca:
		return NewAlpacaFetcher(cfg, log)
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.Backtest.Source)
	}
}

// NewAlpacaFetcher builds a rate-limited Alpaca bar fetcher from cfg.
func NewAlpacaFetcher(cfg *config.Config, log *slog.Logger) (*us.AlpacaFetcher, error) {
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return nil, errors.New("alpaca source requires api_key and api_secret")
	}
	client := us.NewBarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	return us.NewAlpacaFetcher(client, us.FetcherOptions{
		Feed:            cfg.Alpaca.Feed,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
		Logger:          log,
	}), nil
}
