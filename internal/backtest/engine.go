// Package backtest simulates a position series against a price series and
// reduces the resulting equity curves to performance metrics.
package backtest

import (
	"fmt"
	"math"
	"time"

	"vecbt/internal/domain"
)

// Row is one simulated day. Position is the exposure decided at the close of
// Timestamp; LaggedPosition is the exposure actually held over the day.
type Row struct {
	Timestamp      time.Time
	Close          float64
	LogReturn      float64
	Position       float64
	LaggedPosition float64
	Trade          float64
	Cost           float64
	StrategyReturn float64
	CumMarket      float64
	CumStrategy    float64
	MarketValue    float64
	StrategyValue  float64
	Peak           float64
	Drawdown       float64
}

// Result is the per-day simulation table for one run. Rows only cover days
// where both the return and the lagged position are defined.
type Result struct {
	Symbol         string
	InitialCapital float64
	CostRate       float64
	Rows           []Row
}

// Len returns the number of simulated days.
func (r *Result) Len() int { return len(r.Rows) }

// Final returns the last simulated day.
func (r *Result) Final() Row { return r.Rows[len(r.Rows)-1] }

// StrategyReturns returns the daily strategy log returns.
func (r *Result) StrategyReturns() []float64 {
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.StrategyReturn
	}
	return out
}

// Run simulates positions over prices. The position decided at row t-1 earns
// the log return of row t, and every unit of position change at row t costs
// costRate at row t. The first row never has a predecessor and is excluded,
// as is any row whose position or previous position is NaN.
func Run(prices domain.PriceSeries, positions []float64, initialCapital, costRate float64) (*Result, error) {
	if math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) || initialCapital <= 0 {
		return nil, domain.InvalidParamsf("initial capital must be positive, got %v", initialCapital)
	}
	if math.IsNaN(costRate) || costRate < 0 || costRate >= 1 {
		return nil, domain.InvalidParamsf("cost rate must be in [0, 1), got %v", costRate)
	}
	if len(positions) != prices.Len() {
		return nil, domain.InvalidParamsf("position series has %d rows, price series has %d", len(positions), prices.Len())
	}

	if err := checkInputs(prices, positions); err != nil {
		return nil, err
	}
	returns := prices.LogReturns()

	rows := make([]Row, 0, prices.Len())
	for t := 1; t < prices.Len(); t++ {
		if math.IsNaN(positions[t]) || math.IsNaN(positions[t-1]) {
			continue
		}
		trade := math.Abs(positions[t] - positions[t-1])
		cost := trade * costRate
		rows = append(rows, Row{
			Timestamp:      prices.Timestamp(t),
			Close:          prices.Close(t),
			LogReturn:      returns[t],
			Position:       positions[t],
			LaggedPosition: positions[t-1],
			Trade:          trade,
			Cost:           cost,
			StrategyReturn: positions[t-1]*returns[t] - cost,
		})
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %d valid rows after dropping undefined positions, need at least 2",
			domain.ErrInsufficientData, len(rows))
	}

	var sumMarket, sumStrategy, peak float64
	for i := range rows {
		r := &rows[i]
		sumMarket += r.LogReturn
		sumStrategy += r.StrategyReturn
		if math.IsInf(sumMarket, 0) || math.IsNaN(sumMarket) {
			return nil, &domain.DataIntegrityError{Timestamp: r.Timestamp, Field: "cum_market", Value: sumMarket, Reason: "is not finite"}
		}
		if math.IsInf(sumStrategy, 0) || math.IsNaN(sumStrategy) {
			return nil, &domain.DataIntegrityError{Timestamp: r.Timestamp, Field: "cum_strategy", Value: sumStrategy, Reason: "is not finite"}
		}

		r.CumMarket = math.Exp(sumMarket)
		r.CumStrategy = math.Exp(sumStrategy)
		r.MarketValue = initialCapital * r.CumMarket
		r.StrategyValue = initialCapital * r.CumStrategy

		if i == 0 || r.StrategyValue > peak {
			peak = r.StrategyValue
		}
		r.Peak = peak
		r.Drawdown = (r.StrategyValue - peak) / peak
	}

	return &Result{
		Symbol:         prices.Symbol(),
		InitialCapital: initialCapital,
		CostRate:       costRate,
		Rows:           rows,
	}, nil
}

// checkInputs rejects prices that cannot produce a finite log return and
// positions that are infinite. NaN positions are warm-up rows, not errors.
func checkInputs(prices domain.PriceSeries, positions []float64) error {
	for t := 0; t < prices.Len(); t++ {
		c := prices.Close(t)
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			return &domain.DataIntegrityError{Timestamp: prices.Timestamp(t), Field: "close", Value: c, Reason: "must be positive and finite"}
		}
		if math.IsInf(positions[t], 0) {
			return &domain.DataIntegrityError{Timestamp: prices.Timestamp(t), Field: "position", Value: positions[t], Reason: "is not finite"}
		}
	}
	returns := prices.LogReturns()
	for t := 1; t < len(returns); t++ {
		if math.IsNaN(returns[t]) || math.IsInf(returns[t], 0) {
			return &domain.DataIntegrityError{Timestamp: prices.Timestamp(t), Field: "log_return", Value: returns[t], Reason: "is not finite"}
		}
	}
	return nil
}
