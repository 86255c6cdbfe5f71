package api

import (
	"time"

	"github.com/moznion/go-optional"

	"vecbt/internal/backtest"
	"vecbt/internal/config"
	"vecbt/internal/domain"
	"vecbt/internal/gather"
	"vecbt/internal/optimize"
	"vecbt/internal/store"
	"vecbt/internal/strategy"
)

// BacktestRequest is the body of POST /api/v1/backtest. Omitted numeric
// fields fall back to the server's configured defaults.
type BacktestRequest struct {
	Symbol             string             `json:"symbol"`
	Start              string             `json:"start"`
	End                string             `json:"end"`
	InitialCapital     float64            `json:"initialCapital,omitempty"`
	CostRate           *float64           `json:"costRate,omitempty"`
	Strategy           string             `json:"strategy"`
	Params             map[string]float64 `json:"params"`
	TradingDaysPerYear float64            `json:"tradingDaysPerYear,omitempty"`
}

// OptimizeRequest is the body of POST /api/v1/optimize.
type OptimizeRequest struct {
	BacktestRequest
	Grid     optimize.Grid `json:"grid"`
	Metric   string        `json:"metric,omitempty"`
	Minimize bool          `json:"minimize,omitempty"`
	Workers  int           `json:"workers,omitempty"`
}

// RunConfig resolves the request against defaults.
func (req BacktestRequest) RunConfig(def config.BacktestConfig) (backtest.RunConfig, error) {
	symbol := firstNonEmpty(req.Symbol, def.Symbol)
	start := firstNonEmpty(req.Start, def.Start)
	end := firstNonEmpty(req.End, def.End)
	if start == "" || end == "" {
		return backtest.RunConfig{}, domain.InvalidParamsf("start and end dates are required")
	}
	r, err := gather.ParseDateRange(start, end)
	if err != nil {
		return backtest.RunConfig{}, domain.InvalidParamsf("%v", err)
	}

	cfg := backtest.RunConfig{
		Symbol:             symbol,
		Range:              r,
		InitialCapital:     req.InitialCapital,
		CostRate:           def.CostRate,
		Strategy:           firstNonEmpty(req.Strategy, def.Strategy),
		Params:             strategy.Params(req.Params),
		TradingDaysPerYear: req.TradingDaysPerYear,
	}
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = def.InitialCapital
	}
	if req.CostRate != nil {
		cfg.CostRate = *req.CostRate
	}
	if cfg.TradingDaysPerYear == 0 {
		cfg.TradingDaysPerYear = def.TradingDaysPerYear
	}
	if req.Params == nil && cfg.Strategy == def.Strategy {
		cfg.Params = strategy.Params(def.Params).Clone()
	}
	return cfg, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// MetricsJSON is the JSON representation of backtest.Metrics. Undefined
// ratios are null.
type MetricsJSON struct {
	TotalReturn      float64  `json:"totalReturn"`
	MarketReturn     float64  `json:"marketReturn"`
	Outperformance   float64  `json:"outperformance"`
	AnnualizedReturn float64  `json:"annualizedReturn"`
	Volatility       float64  `json:"volatility"`
	MaxDrawdown      float64  `json:"maxDrawdown"`
	Sharpe           *float64 `json:"sharpe"`
	Sortino          *float64 `json:"sortino"`
	Calmar           *float64 `json:"calmar"`
	Trades           int      `json:"trades"`
	TotalCost        float64  `json:"totalCost"`
}

func metricsJSON(m backtest.Metrics) MetricsJSON {
	return MetricsJSON{
		TotalReturn:      m.TotalReturn,
		MarketReturn:     m.MarketReturn,
		Outperformance:   m.Outperformance,
		AnnualizedReturn: m.AnnualizedReturn,
		Volatility:       m.Volatility,
		MaxDrawdown:      m.MaxDrawdown,
		Sharpe:           optPtr(m.Sharpe),
		Sortino:          optPtr(m.Sortino),
		Calmar:           optPtr(m.Calmar),
		Trades:           m.Trades,
		TotalCost:        m.TotalCost,
	}
}

func optPtr(v optional.Option[float64]) *float64 {
	if v.IsNone() {
		return nil
	}
	f := v.Unwrap()
	return &f
}

// RunJSON is the JSON representation of a stored run summary.
type RunJSON struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	Strategy       string             `json:"strategy"`
	Params         map[string]float64 `json:"params"`
	Start          string             `json:"start"`
	End            string             `json:"end"`
	InitialCapital float64            `json:"initialCapital"`
	CostRate       float64            `json:"costRate"`
	Metrics        MetricsJSON        `json:"metrics"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func runJSON(r domain.RunRecord) RunJSON {
	return RunJSON{
		ID:             r.ID,
		Symbol:         r.Symbol,
		Strategy:       r.Strategy,
		Params:         r.Params,
		Start:          r.Start.Format(time.DateOnly),
		End:            r.End.Format(time.DateOnly),
		InitialCapital: r.InitialCapital,
		CostRate:       r.CostRate,
		Metrics: MetricsJSON{
			TotalReturn:      r.TotalReturn,
			MarketReturn:     r.MarketReturn,
			Outperformance:   r.TotalReturn - r.MarketReturn,
			AnnualizedReturn: r.AnnualizedReturn,
			Volatility:       r.Volatility,
			MaxDrawdown:      r.MaxDrawdown,
			Sharpe:           r.Sharpe,
			Sortino:          r.Sortino,
			Calmar:           r.Calmar,
			Trades:           r.Trades,
			TotalCost:        r.TotalCost,
		},
		CreatedAt: r.CreatedAt,
	}
}

// ResultRowJSON is one row of a run's result table.
type ResultRowJSON struct {
	Date           string  `json:"date"`
	Close          float64 `json:"close"`
	Position       float64 `json:"position"`
	StrategyReturn float64 `json:"strategyReturn"`
	MarketValue    float64 `json:"marketValue"`
	StrategyValue  float64 `json:"strategyValue"`
	Drawdown       float64 `json:"drawdown"`
	Cost           float64 `json:"cost"`
}

func resultRowsJSON(rows []store.ResultRecord) []ResultRowJSON {
	out := make([]ResultRowJSON, len(rows))
	for i, r := range rows {
		out[i] = ResultRowJSON{
			Date:           time.UnixMilli(r.Timestamp).UTC().Format(time.DateOnly),
			Close:          r.Close,
			Position:       r.Position,
			StrategyReturn: r.StrategyReturn,
			MarketValue:    r.MarketValue,
			StrategyValue:  r.StrategyValue,
			Drawdown:       r.Drawdown,
			Cost:           r.Cost,
		}
	}
	return out
}

// EvaluationJSON is one sweep candidate.
type EvaluationJSON struct {
	Params  map[string]float64 `json:"params"`
	Outcome string             `json:"outcome"`
	Score   *float64           `json:"score"`
	Error   string             `json:"error,omitempty"`
}

// OptimizeJSON is the response of POST /api/v1/optimize.
type OptimizeJSON struct {
	Metric      string           `json:"metric"`
	Minimize    bool             `json:"minimize"`
	Best        RunJSON          `json:"best"`
	Evaluations []EvaluationJSON `json:"evaluations"`
}

func evaluationsJSON(evs []optimize.Evaluation) []EvaluationJSON {
	out := make([]EvaluationJSON, len(evs))
	for i, ev := range evs {
		out[i] = EvaluationJSON{Params: ev.Params, Outcome: ev.Outcome, Score: optPtr(ev.Score)}
		if ev.Err != nil {
			out[i].Error = ev.Err.Error()
		}
	}
	return out
}
