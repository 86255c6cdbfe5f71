// Package engine coordinates backtest runs and parameter sweeps with price
// fetching and run persistence. It is the layer the CLI and the API servers
// call into.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"

	"vecbt/internal/backtest"
	"vecbt/internal/domain"
	"vecbt/internal/gather"
	"vecbt/internal/optimize"
	"vecbt/internal/store"
	"vecbt/internal/strategy"
)

// Engine builds Backtesters on demand and records what they produce. The
// run and result stores are optional; without them runs are not persisted.
type Engine struct {
	fetcher  gather.PriceFetcher
	registry *strategy.Registry
	runs     store.RunStore
	results  store.ResultStore
	log      *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	fetcher gather.PriceFetcher,
	registry *strategy.Registry,
	runs store.RunStore,
	results store.ResultStore,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		fetcher:  fetcher,
		registry: registry,
		runs:     runs,
		results:  results,
		log:      log.With("component", "engine"),
		now:      time.Now,
	}
}

// Strategies lists the registered strategy names.
func (e *Engine) Strategies() []string { return e.registry.List() }

// RunOutcome is a completed, possibly persisted, backtest.
type RunOutcome struct {
	Record  domain.RunRecord
	Metrics backtest.Metrics
	Result  *backtest.Result
}

// Backtest fetches prices, runs cfg once and persists the outcome.
func (e *Engine) Backtest(ctx context.Context, cfg backtest.RunConfig) (*RunOutcome, error) {
	bt, err := backtest.New(ctx, e.fetcher, e.registry, cfg, e.log)
	if err != nil {
		return nil, err
	}
	return e.runAndRecord(ctx, bt)
}

// OptimizeOutcome is a sweep report plus the persisted rerun of its winner.
type OptimizeOutcome struct {
	Report *optimize.Report
	Best   *RunOutcome
}

// Optimize fetches prices once, sweeps grid over cfg.Strategy and reruns the
// winning parameters so the best run is stored like any other.
func (e *Engine) Optimize(ctx context.Context, cfg backtest.RunConfig, grid optimize.Grid, sc optimize.Config) (*OptimizeOutcome, error) {
	candidates, err := grid.Candidates()
	if err != nil {
		return nil, err
	}
	// The Backtester needs some valid parameter set to construct; sweep
	// candidates are evaluated independently of it.
	if len(cfg.Params) == 0 {
		cfg.Params = firstValid(e.registry, cfg.Strategy, candidates)
	}
	bt, err := backtest.New(ctx, e.fetcher, e.registry, cfg, e.log)
	if err != nil {
		return nil, err
	}

	sc.Strategy = cfg.Strategy
	report, err := optimize.Sweep(ctx, bt, grid, sc, e.log)
	if err != nil {
		return &OptimizeOutcome{Report: report}, err
	}
	if err := bt.SetParameters(report.Best.Params); err != nil {
		return nil, err
	}
	best, err := e.runAndRecord(ctx, bt)
	if err != nil {
		return nil, err
	}
	return &OptimizeOutcome{Report: report, Best: best}, nil
}

// GetRun returns a stored run summary.
func (e *Engine) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	if e.runs == nil {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return e.runs.GetRun(ctx, id)
}

// ListRuns returns stored run summaries, newest first.
func (e *Engine) ListRuns(ctx context.Context, filter store.RunFilter) ([]domain.RunRecord, error) {
	if e.runs == nil {
		return nil, nil
	}
	return e.runs.ListRuns(ctx, filter)
}

// GetResult returns a stored run's result table.
func (e *Engine) GetResult(ctx context.Context, id string) ([]store.ResultRecord, error) {
	if e.results == nil {
		return nil, fmt.Errorf("result %s: %w", id, store.ErrNotFound)
	}
	return e.results.ReadResult(ctx, id)
}

func (e *Engine) runAndRecord(ctx context.Context, bt *backtest.Backtester) (*RunOutcome, error) {
	m, err := bt.Run()
	if err != nil {
		return nil, err
	}
	res := bt.Result().Unwrap()
	out := &RunOutcome{
		Record:  NewRunRecord(uuid.NewString(), bt.Config(), res, m, e.now().UTC()),
		Metrics: m,
		Result:  res,
	}

	if e.runs != nil {
		if err := e.runs.SaveRun(ctx, &out.Record); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}
	if e.results != nil {
		if err := e.results.WriteResult(ctx, out.Record.ID, ResultRecords(res)); err != nil {
			return nil, fmt.Errorf("saving result table: %w", err)
		}
	}
	e.log.Info("run recorded", "id", out.Record.ID, "symbol", out.Record.Symbol, "strategy", out.Record.Strategy)
	return out, nil
}

// firstValid returns the first candidate the strategy accepts, or nil.
func firstValid(reg *strategy.Registry, name string, candidates []strategy.Params) strategy.Params {
	for _, p := range candidates {
		if _, err := reg.New(name, p); err == nil {
			return p
		} else if !errors.Is(err, domain.ErrInvalidParameters) {
			return nil
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions to stored records
// ---------------------------------------------------------------------------

// NewRunRecord summarizes one run. The stored period is the span of the
// result rows.
func NewRunRecord(id string, cfg backtest.RunConfig, res *backtest.Result, m backtest.Metrics, createdAt time.Time) domain.RunRecord {
	rec := domain.RunRecord{
		ID:               id,
		Symbol:           strings.ToUpper(cfg.Symbol),
		Strategy:         cfg.Strategy,
		Params:           cfg.Params.Clone(),
		InitialCapital:   cfg.InitialCapital,
		CostRate:         cfg.CostRate,
		TotalReturn:      m.TotalReturn,
		MarketReturn:     m.MarketReturn,
		AnnualizedReturn: m.AnnualizedReturn,
		Volatility:       m.Volatility,
		MaxDrawdown:      m.MaxDrawdown,
		Sharpe:           ptr(m.Sharpe),
		Sortino:          ptr(m.Sortino),
		Calmar:           ptr(m.Calmar),
		Trades:           m.Trades,
		TotalCost:        m.TotalCost,
		CreatedAt:        createdAt,
	}
	if res != nil && res.Len() > 0 {
		rec.Start = res.Rows[0].Timestamp
		rec.End = res.Final().Timestamp
	}
	return rec
}

// ResultRecords converts a result table to its on-disk rows.
func ResultRecords(res *backtest.Result) []store.ResultRecord {
	out := make([]store.ResultRecord, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = store.ResultRecord{
			Timestamp:      r.Timestamp.UnixMilli(),
			Close:          r.Close,
			LogReturn:      r.LogReturn,
			Position:       r.Position,
			LaggedPosition: r.LaggedPosition,
			Trade:          r.Trade,
			Cost:           r.Cost,
			StrategyReturn: r.StrategyReturn,
			CumMarket:      r.CumMarket,
			CumStrategy:    r.CumStrategy,
			MarketValue:    r.MarketValue,
			StrategyValue:  r.StrategyValue,
			Peak:           r.Peak,
			Drawdown:       r.Drawdown,
		}
	}
	return out
}

func ptr(v optional.Option[float64]) *float64 {
	if v.IsNone() {
		return nil
	}
	f := v.Unwrap()
	return &f
}
