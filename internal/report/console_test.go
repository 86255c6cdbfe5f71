package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"

	"vecbt/internal/backtest"
	"vecbt/internal/domain"
	"vecbt/internal/optimize"
	"vecbt/internal/strategy"
)

func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	run := domain.RunRecord{
		ID: "abc", Symbol: "SPY", Strategy: "sma-cross",
		Params: map[string]float64{"short": 10, "long": 50},
		Start:  time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
	}
	c.PrintRun(run, backtest.Metrics{
		TotalReturn: 0.1234,
		Sharpe:      optional.Some(1.5),
		Sortino:     optional.None[float64](),
		Trades:      7,
	})

	out := buf.String()
	assert.Contains(t, out, "long=50,short=10")
	assert.Contains(t, out, "2020-01-02 to 2023-12-29")
	assert.Contains(t, out, "12.34%")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "n/a")
}

func TestPrintSweep(t *testing.T) {
	var buf bytes.Buffer
	rep := &optimize.Report{
		Metric: backtest.MetricSharpe,
		Evaluations: []optimize.Evaluation{
			{Params: strategy.Params{"w": 1}, Outcome: optimize.OutcomeScored, Score: optional.Some(0.2)},
			{Params: strategy.Params{"w": 2}, Outcome: optimize.OutcomeScored, Score: optional.Some(0.9)},
			{Params: strategy.Params{"w": 3}, Outcome: optimize.OutcomeSkipped},
			{Params: strategy.Params{"w": 4}, Outcome: optimize.OutcomeUndefined},
		},
	}
	NewConsole(&buf).PrintSweep(rep, 1)

	out := buf.String()
	assert.Contains(t, out, "w=2")
	assert.NotContains(t, out, "w=1")
	assert.Contains(t, out, "skipped: 1  undefined: 1")
	assert.True(t, strings.Contains(out, "4 candidates, max sharpe"))
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	sharpe := 0.75
	NewConsole(&buf).PrintRuns([]domain.RunRecord{
		{ID: "r1", Symbol: "SPY", Strategy: "momentum", Sharpe: &sharpe},
		{ID: "r2", Symbol: "QQQ", Strategy: "momentum"},
	})
	out := buf.String()
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "0.750")
	assert.Contains(t, out, "QQQ")
}

func TestPrintRecord(t *testing.T) {
	var buf bytes.Buffer
	sharpe := 0.75
	NewConsole(&buf).PrintRecord(domain.RunRecord{
		ID: "r1", Symbol: "QQQ", Strategy: "momentum",
		Params:       map[string]float64{"window": 20},
		TotalReturn:  0.2,
		MarketReturn: 0.05,
		Sharpe:       &sharpe,
	})

	out := buf.String()
	assert.Contains(t, out, "r1  QQQ momentum")
	assert.Contains(t, out, "15.00%", "outperformance is derived")
	assert.Contains(t, out, "0.750")
	assert.Equal(t, 2, strings.Count(out, "n/a"))
}
