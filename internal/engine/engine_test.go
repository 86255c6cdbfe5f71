package engine

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecbt/internal/backtest"
	"vecbt/internal/domain"
	"vecbt/internal/gather"
	"vecbt/internal/optimize"
	"vecbt/internal/store"
	"vecbt/internal/strategy"
	"vecbt/internal/strategy/builtins"
)

var day0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func bars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = domain.Bar{
			Symbol:    "SPY",
			Timestamp: day0.AddDate(0, 0, i),
			Close:     100 * math.Exp(0.001*float64(i)+0.05*math.Sin(float64(i)/5)),
		}
	}
	return out
}

func runConfig() backtest.RunConfig {
	return backtest.RunConfig{
		Symbol:         "spy",
		Range:          gather.DateRange{Start: day0, End: day0.AddDate(1, 0, 0)},
		InitialCapital: 10_000,
		CostRate:       0.001,
		Strategy:       builtins.SMACrossName,
		Params:         strategy.Params{"short": 5, "long": 20},
	}
}

func newEngine(t *testing.T) (*Engine, *store.SQLiteStore, *store.ParquetStore) {
	t.Helper()
	dir := t.TempDir()
	runs, err := store.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })
	results := store.NewParquetStore(dir)

	e := NewEngine(gather.NewMemoryFetcher(bars(200)), builtins.NewRegistry(), runs, results, nil)
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return e, runs, results
}

func TestNewEngine(t *testing.T) {
	e := NewEngine(nil, builtins.NewRegistry(), nil, nil, nil)
	require.NotNil(t, e)
	assert.Equal(t, []string{builtins.MeanReversionName, builtins.MomentumName, builtins.SMACrossName}, e.Strategies())
}

func TestEngineBacktestPersists(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	out, err := e.Backtest(ctx, runConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, out.Record.ID)
	assert.Equal(t, "SPY", out.Record.Symbol)
	assert.Equal(t, out.Metrics.TotalReturn, out.Record.TotalReturn)
	assert.Equal(t, out.Result.Rows[0].Timestamp, out.Record.Start)

	stored, err := e.GetRun(ctx, out.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Record.Params, stored.Params)
	assert.Equal(t, out.Record.Trades, stored.Trades)
	assert.True(t, stored.CreatedAt.Equal(out.Record.CreatedAt))

	rows, err := e.GetResult(ctx, out.Record.ID)
	require.NoError(t, err)
	require.Len(t, rows, out.Result.Len())
	assert.Equal(t, out.Result.Final().StrategyValue, rows[len(rows)-1].StrategyValue)

	list, err := e.ListRuns(ctx, store.RunFilter{Symbol: "SPY"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngineBacktestErrors(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	cfg := runConfig()
	cfg.Symbol = "QQQ"
	_, err := e.Backtest(ctx, cfg)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)

	cfg = runConfig()
	cfg.Params = strategy.Params{"short": 5, "long": 500}
	_, err = e.Backtest(ctx, cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	list, err := e.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = e.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngineOptimize(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	cfg := runConfig()
	cfg.Params = nil
	grid := optimize.Grid{
		"short": {Start: 5, Stop: 25, Step: 5},
		"long":  {Start: 10, Stop: 50, Step: 10},
	}
	out, err := e.Optimize(ctx, cfg, grid, optimize.Config{Metric: backtest.MetricTotalReturn, Workers: 2})
	require.NoError(t, err)
	require.NotNil(t, out.Best)

	assert.Len(t, out.Report.Evaluations, 16)
	assert.Equal(t, out.Report.Best.Params, strategy.Params(out.Best.Record.Params))
	assert.InDelta(t, out.Report.Best.Score.Unwrap(), out.Best.Metrics.TotalReturn, 1e-12)
	for _, ev := range out.Report.Evaluations {
		if ev.Outcome == optimize.OutcomeScored {
			assert.LessOrEqual(t, ev.Score.Unwrap(), out.Report.Best.Score.Unwrap())
		}
	}

	list, err := e.ListRuns(ctx, store.RunFilter{Strategy: builtins.SMACrossName})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngineWithoutStores(t *testing.T) {
	e := NewEngine(gather.NewMemoryFetcher(bars(100)), builtins.NewRegistry(), nil, nil, nil)
	out, err := e.Backtest(context.Background(), runConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, out.Record.ID)

	runs, err := e.ListRuns(context.Background(), store.RunFilter{})
	assert.NoError(t, err)
	assert.Nil(t, runs)
	_, err = e.GetResult(context.Background(), out.Record.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
