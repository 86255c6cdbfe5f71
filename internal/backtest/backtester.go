package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"vecbt/internal/domain"
	"vecbt/internal/gather"
	"vecbt/internal/strategy"
	"vecbt/internal/telemetry"
)

var validate = validator.New()

// RunConfig is the full configuration surface of a Backtester.
type RunConfig struct {
	Symbol             string           `validate:"required"`
	Range              gather.DateRange `validate:"-"`
	InitialCapital     float64          `validate:"gt=0"`
	CostRate           float64          `validate:"gte=0,lt=1"`
	Strategy           string           `validate:"required"`
	Params             strategy.Params  `validate:"-"`
	TradingDaysPerYear float64          `validate:"gte=0"`
}

// Validate checks the scalar fields of cfg. Strategy params are checked by
// the strategy factory.
func (cfg RunConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
	}
	if cfg.Range.End.Before(cfg.Range.Start) {
		return domain.InvalidParamsf("end date before start date")
	}
	return nil
}

func (cfg RunConfig) metricsConfig() MetricsConfig {
	return MetricsConfig{TradingDaysPerYear: cfg.TradingDaysPerYear}
}

// Backtester owns one symbol's price table and replays a strategy over it.
// The price table is fetched once at construction and replaced only by
// Refresh. Evaluate is safe for concurrent use; Run, SetParameters and
// Refresh are not.
type Backtester struct {
	cfg      RunConfig
	fetcher  gather.PriceFetcher
	registry *strategy.Registry
	strat    strategy.Strategy
	prices   domain.PriceSeries
	result   *Result
	log      *slog.Logger
}

// New validates cfg, builds the strategy and fetches the price table.
func New(ctx context.Context, fetcher gather.PriceFetcher, registry *strategy.Registry, cfg RunConfig, log *slog.Logger) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := registry.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Backtester{
		cfg:      cfg,
		fetcher:  fetcher,
		registry: registry,
		strat:    strat,
		log:      log.With("component", "backtest", "symbol", cfg.Symbol),
	}
	b.cfg.Params = cfg.Params.Clone()
	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// NewFromSeries builds a Backtester over an already loaded price table.
func NewFromSeries(prices domain.PriceSeries, registry *strategy.Registry, cfg RunConfig, log *slog.Logger) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := registry.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	cfg.Params = cfg.Params.Clone()
	return &Backtester{
		cfg:      cfg,
		registry: registry,
		strat:    strat,
		prices:   prices,
		log:      log.With("component", "backtest", "symbol", cfg.Symbol),
	}, nil
}

// Refresh refetches the price table. The stored result is discarded.
func (b *Backtester) Refresh(ctx context.Context) error {
	if b.fetcher == nil {
		return fmt.Errorf("refreshing %s: no price fetcher configured", b.cfg.Symbol)
	}
	bars, err := b.fetcher.FetchDaily(ctx, b.cfg.Symbol, b.cfg.Range)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", b.cfg.Symbol, err)
	}
	prices, err := domain.NewPriceSeries(b.cfg.Symbol, bars)
	if err != nil {
		return fmt.Errorf("loading %s: %w", b.cfg.Symbol, err)
	}
	b.prices = prices
	b.result = nil
	b.log.Info("prices loaded", "rows", prices.Len())
	return nil
}

// Config returns a copy of the current configuration.
func (b *Backtester) Config() RunConfig {
	cfg := b.cfg
	cfg.Params = b.cfg.Params.Clone()
	return cfg
}

// Prices returns the price table.
func (b *Backtester) Prices() domain.PriceSeries { return b.prices }

// SetParameters validates params against the current strategy and adopts
// them for subsequent runs. On error nothing changes.
func (b *Backtester) SetParameters(params strategy.Params) error {
	strat, err := b.registry.New(b.cfg.Strategy, params)
	if err != nil {
		return err
	}
	b.strat = strat
	b.cfg.Params = params.Clone()
	return nil
}

// WithParameters returns a new Backtester sharing this one's price table but
// using params. The receiver is not modified.
func (b *Backtester) WithParameters(params strategy.Params) (*Backtester, error) {
	strat, err := b.registry.New(b.cfg.Strategy, params)
	if err != nil {
		return nil, err
	}
	next := *b
	next.cfg.Params = params.Clone()
	next.strat = strat
	next.result = nil
	return &next, nil
}

// Run recomputes positions and the result table from scratch, stores the
// result, and returns its metrics.
func (b *Backtester) Run() (Metrics, error) {
	start := time.Now()
	res, err := b.simulate(b.strat)
	telemetry.RecordRun(b.cfg.Strategy, err, time.Since(start))
	if err != nil {
		b.log.Warn("backtest failed", "strategy", b.cfg.Strategy, "params", b.cfg.Params.String(), "error", err)
		return Metrics{}, err
	}
	b.result = res

	m := ComputeMetrics(res, b.cfg.metricsConfig()).Unwrap()
	b.log.Info("backtest complete",
		"strategy", b.cfg.Strategy,
		"params", b.cfg.Params.String(),
		"rows", res.Len(),
		"total_return", m.TotalReturn,
		"market_return", m.MarketReturn,
		"trades", m.Trades,
	)
	return m, nil
}

// Evaluate runs params against the price table without touching stored
// state.
func (b *Backtester) Evaluate(params strategy.Params) (Metrics, error) {
	strat, err := b.registry.New(b.cfg.Strategy, params)
	if err != nil {
		return Metrics{}, err
	}
	res, err := b.simulate(strat)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(res, b.cfg.metricsConfig()).Unwrap(), nil
}

// Result returns the latest stored result, or None before the first Run.
func (b *Backtester) Result() optional.Option[*Result] {
	if b.result == nil {
		return optional.None[*Result]()
	}
	return optional.Some(b.result)
}

// Metrics recomputes metrics from the latest stored result, or None before
// the first Run.
func (b *Backtester) Metrics() optional.Option[Metrics] {
	return ComputeMetrics(b.result, b.cfg.metricsConfig())
}

func (b *Backtester) simulate(strat strategy.Strategy) (*Result, error) {
	positions, err := strat.Positions(b.prices.Closes())
	if err != nil {
		return nil, fmt.Errorf("generating %s positions: %w", strat.Name(), err)
	}
	return Run(b.prices, positions, b.cfg.InitialCapital, b.cfg.CostRate)
}
