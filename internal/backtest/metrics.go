package backtest

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"

	"vecbt/internal/domain"
)

// DefaultTradingDaysPerYear annualizes daily statistics.
const DefaultTradingDaysPerYear = 252

// zeroTolerance treats a dispersion at or below it as zero.
const zeroTolerance = 1e-12

// MetricsConfig controls metric annualization.
type MetricsConfig struct {
	TradingDaysPerYear float64
}

// DefaultMetricsConfig returns a config using DefaultTradingDaysPerYear.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{TradingDaysPerYear: DefaultTradingDaysPerYear}
}

// Metrics summarizes a Result. Ratios are None when their denominator is
// zero. Annualized figures scale the mean by N and the standard deviation by
// sqrt(N), so Sharpe and Sortino are annual-over-annual.
type Metrics struct {
	TotalReturn      float64
	MarketReturn     float64
	Outperformance   float64
	AnnualizedReturn float64
	Volatility       float64
	MaxDrawdown      float64
	Sharpe           optional.Option[float64]
	Sortino          optional.Option[float64]
	Calmar           optional.Option[float64]
	Trades           int
	TotalCost        float64
}

// Metric names accepted by Metrics.Get.
const (
	MetricTotalReturn      = "total_return"
	MetricMarketReturn     = "market_return"
	MetricOutperformance   = "outperformance"
	MetricAnnualizedReturn = "annualized_return"
	MetricVolatility       = "volatility"
	MetricMaxDrawdown      = "max_drawdown"
	MetricSharpe           = "sharpe"
	MetricSortino          = "sortino"
	MetricCalmar           = "calmar"
)

// MetricNames lists every name Get understands.
var MetricNames = []string{
	MetricTotalReturn, MetricMarketReturn, MetricOutperformance, MetricAnnualizedReturn,
	MetricVolatility, MetricMaxDrawdown, MetricSharpe, MetricSortino, MetricCalmar,
}

// Get looks a metric up by name. Undefined ratios come back as None.
func (m Metrics) Get(name string) (optional.Option[float64], error) {
	switch name {
	case MetricTotalReturn:
		return optional.Some(m.TotalReturn), nil
	case MetricMarketReturn:
		return optional.Some(m.MarketReturn), nil
	case MetricOutperformance:
		return optional.Some(m.Outperformance), nil
	case MetricAnnualizedReturn:
		return optional.Some(m.AnnualizedReturn), nil
	case MetricVolatility:
		return optional.Some(m.Volatility), nil
	case MetricMaxDrawdown:
		return optional.Some(m.MaxDrawdown), nil
	case MetricSharpe:
		return m.Sharpe, nil
	case MetricSortino:
		return m.Sortino, nil
	case MetricCalmar:
		return m.Calmar, nil
	}
	return optional.None[float64](), domain.InvalidParamsf("unknown metric %q", name)
}

// ComputeMetrics reduces res to Metrics. A nil result yields None.
func ComputeMetrics(res *Result, cfg MetricsConfig) optional.Option[Metrics] {
	if res == nil || len(res.Rows) == 0 {
		return optional.None[Metrics]()
	}
	n := cfg.TradingDaysPerYear
	if n <= 0 {
		n = DefaultTradingDaysPerYear
	}

	final := res.Final()
	returns := res.StrategyReturns()

	m := Metrics{
		TotalReturn:  (final.StrategyValue - res.InitialCapital) / res.InitialCapital,
		MarketReturn: (final.MarketValue - res.InitialCapital) / res.InitialCapital,
	}
	m.Outperformance = m.TotalReturn - m.MarketReturn

	avg := mean(returns)
	m.AnnualizedReturn = avg * n

	sd := stdev(returns)
	m.Volatility = sd * math.Sqrt(n)
	m.Sharpe = ratio(m.AnnualizedReturn, m.Volatility)

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) >= 2 {
		m.Sortino = ratio(m.AnnualizedReturn, stdev(downside)*math.Sqrt(n))
	} else {
		m.Sortino = optional.None[float64]()
	}

	for _, row := range res.Rows {
		if row.Drawdown < m.MaxDrawdown {
			m.MaxDrawdown = row.Drawdown
		}
		if row.Trade != 0 {
			m.Trades++
		}
		m.TotalCost += row.Cost
	}
	m.Calmar = ratio(m.AnnualizedReturn, math.Abs(m.MaxDrawdown))

	return optional.Some(m)
}

// Defined unwraps a metric value, reporting ErrUndefinedMetric for None.
func Defined(name string, v optional.Option[float64]) (float64, error) {
	if v.IsNone() {
		return 0, fmt.Errorf("%w: %s", domain.ErrUndefinedMetric, name)
	}
	return v.Unwrap(), nil
}

func ratio(num, den float64) optional.Option[float64] {
	if den <= zeroTolerance || math.IsNaN(num) || math.IsNaN(den) {
		return optional.None[float64]()
	}
	return optional.Some(num / den)
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// stdev is the sample standard deviation; zero for fewer than two points.
func stdev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	mu := mean(x)
	var ss float64
	for _, v := range x {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)-1))
}
