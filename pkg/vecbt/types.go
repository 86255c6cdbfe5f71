// Package vecbt is a Go SDK for the vecbt-server HTTP and gRPC APIs.
package vecbt

import "time"

// Range is a half-open sweep range [Start, Stop) advanced by Step.
type Range struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step"`
}

// BacktestRequest describes one run. Zero numeric fields use server defaults.
type BacktestRequest struct {
	Symbol             string             `json:"symbol"`
	Start              string             `json:"start"`
	End                string             `json:"end"`
	InitialCapital     float64            `json:"initialCapital,omitempty"`
	CostRate           *float64           `json:"costRate,omitempty"`
	Strategy           string             `json:"strategy"`
	Params             map[string]float64 `json:"params,omitempty"`
	TradingDaysPerYear float64            `json:"tradingDaysPerYear,omitempty"`
}

// OptimizeRequest describes a parameter sweep.
type OptimizeRequest struct {
	BacktestRequest
	Grid     map[string]Range `json:"grid"`
	Metric   string           `json:"metric,omitempty"`
	Minimize bool             `json:"minimize,omitempty"`
	Workers  int              `json:"workers,omitempty"`
}

// Metrics are the summary statistics of a run. Undefined ratios are nil.
type Metrics struct {
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

// Run is a stored run summary.
type Run struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	Strategy       string             `json:"strategy"`
	Params         map[string]float64 `json:"params"`
	Start          string             `json:"start"`
	End            string             `json:"end"`
	InitialCapital float64            `json:"initialCapital"`
	CostRate       float64            `json:"costRate"`
	Metrics        Metrics            `json:"metrics"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Evaluation is one sweep candidate.
type Evaluation struct {
	Params  map[string]float64 `json:"params"`
	Outcome string             `json:"outcome"`
	Score   *float64           `json:"score"`
	Error   string             `json:"error,omitempty"`
}

// OptimizeResult is the outcome of a sweep.
type OptimizeResult struct {
	Metric      string       `json:"metric"`
	Minimize    bool         `json:"minimize"`
	Best        Run          `json:"best"`
	Evaluations []Evaluation `json:"evaluations"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Symbol   string
	Strategy string
	Limit    int
}
