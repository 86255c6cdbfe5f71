// Package domain holds the core value types shared by every vecbt package:
// daily bars, the immutable price series a backtest runs over, persisted run
// records, and the error taxonomy.
package domain

import (
	"math"
	"sort"
	"time"
)

// Bar is a single daily OHLCV row as delivered by a price feed.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// PriceSeries is an ordered, read-only sequence of closing prices for one
// symbol. Timestamps are strictly increasing.
type PriceSeries struct {
	symbol     string
	timestamps []time.Time
	closes     []float64
}

// NewPriceSeries builds a PriceSeries from bars. Bars are sorted by timestamp;
// an empty input yields ErrEmptyDataset and a repeated timestamp yields a
// *DataIntegrityError. The bars slice is not modified.
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	if len(bars) == 0 {
		return PriceSeries{}, ErrEmptyDataset
	}

	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	ps := PriceSeries{
		symbol:     symbol,
		timestamps: make([]time.Time, len(sorted)),
		closes:     make([]float64, len(sorted)),
	}
	for i, b := range sorted {
		if i > 0 && !b.Timestamp.After(sorted[i-1].Timestamp) {
			return PriceSeries{}, &DataIntegrityError{
				Timestamp: b.Timestamp,
				Field:     "timestamp",
				Reason:    "duplicate timestamp",
			}
		}
		ps.timestamps[i] = b.Timestamp
		ps.closes[i] = b.Close
	}
	return ps, nil
}

// Symbol returns the instrument the series belongs to.
func (ps PriceSeries) Symbol() string { return ps.symbol }

// Len returns the number of observations.
func (ps PriceSeries) Len() int { return len(ps.closes) }

// Timestamp returns the timestamp of observation i.
func (ps PriceSeries) Timestamp(i int) time.Time { return ps.timestamps[i] }

// Close returns the closing price of observation i.
func (ps PriceSeries) Close(i int) float64 { return ps.closes[i] }

// Timestamps returns a copy of the observation timestamps.
func (ps PriceSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(ps.timestamps))
	copy(out, ps.timestamps)
	return out
}

// Closes returns a copy of the closing prices.
func (ps PriceSeries) Closes() []float64 {
	out := make([]float64, len(ps.closes))
	copy(out, ps.closes)
	return out
}

// LogReturns returns ln(close[t]/close[t-1]) aligned to the series. The first
// element is NaN because it has no predecessor.
func (ps PriceSeries) LogReturns() []float64 {
	out := make([]float64, len(ps.closes))
	for i := range ps.closes {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(ps.closes[i] / ps.closes[i-1])
	}
	return out
}

// RunRecord is the persisted summary of one completed backtest run. Ratio
// metrics that were undefined for the run are nil.
type RunRecord struct {
	ID             string
	Symbol         string
	Strategy       string
	Params         map[string]float64
	Start          time.Time
	End            time.Time
	InitialCapital float64
	CostRate       float64

	TotalReturn      float64
	MarketReturn     float64
	AnnualizedReturn float64
	Volatility       float64
	MaxDrawdown      float64
	Sharpe           *float64
	Sortino          *float64
	Calmar           *float64
	Trades           int
	TotalCost        float64

	CreatedAt time.Time
}
