// Package report renders backtest metrics, sweep results and run history as
// console tables.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/olekukonko/tablewriter"

	"vecbt/internal/backtest"
	"vecbt/internal/domain"
	"vecbt/internal/optimize"
	"vecbt/internal/strategy"
)

// Console writes human-readable tables to out.
type Console struct {
	out io.Writer
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// PrintRun prints the header of a run followed by its metrics table.
func (c *Console) PrintRun(run domain.RunRecord, m backtest.Metrics) {
	fmt.Fprintf(c.out, "\n%s  %s %s  %s to %s\n", run.ID, run.Symbol, run.Strategy,
		day(run.Start), day(run.End))
	fmt.Fprintf(c.out, "  params: %s  capital: %.2f  cost rate: %g\n",
		strategy.Params(run.Params).String(), run.InitialCapital, run.CostRate)
	c.PrintMetrics(m)
}

// PrintMetrics prints one metric per row.
func (c *Console) PrintMetrics(m backtest.Metrics) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Total return", pct(m.TotalReturn))
	table.Append("Buy & hold return", pct(m.MarketReturn))
	table.Append("Outperformance", pct(m.Outperformance))
	table.Append("Annualized return", pct(m.AnnualizedReturn))
	table.Append("Volatility", pct(m.Volatility))
	table.Append("Max drawdown", pct(m.MaxDrawdown))
	table.Append("Sharpe", ratio(m.Sharpe))
	table.Append("Sortino", ratio(m.Sortino))
	table.Append("Calmar", ratio(m.Calmar))
	table.Append("Trades", fmt.Sprintf("%d", m.Trades))
	table.Append("Total cost", pct(m.TotalCost))
	table.Render()
}

// PrintSweep prints the top scored evaluations, best first, followed by a
// count of skipped and undefined candidates. top <= 0 prints all.
func (c *Console) PrintSweep(r *optimize.Report, top int) {
	var scored []optimize.Evaluation
	skipped, undefined := 0, 0
	for _, ev := range r.Evaluations {
		switch ev.Outcome {
		case optimize.OutcomeScored:
			scored = append(scored, ev)
		case optimize.OutcomeSkipped:
			skipped++
		case optimize.OutcomeUndefined:
			undefined++
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i].Score.Unwrap(), scored[j].Score.Unwrap()
		if r.Minimize {
			return a < b
		}
		return a > b
	})
	if top > 0 && len(scored) > top {
		scored = scored[:top]
	}

	direction := "max"
	if r.Minimize {
		direction = "min"
	}
	fmt.Fprintf(c.out, "\nsweep: %d candidates, %s %s\n", len(r.Evaluations), direction, r.Metric)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Params", r.Metric, "Total return", "Max DD", "Trades")
	for i, ev := range scored {
		table.Append(
			fmt.Sprintf("%d", i+1),
			ev.Params.String(),
			fmt.Sprintf("%.4f", ev.Score.Unwrap()),
			pct(ev.Metrics.TotalReturn),
			pct(ev.Metrics.MaxDrawdown),
			fmt.Sprintf("%d", ev.Metrics.Trades),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  skipped: %d  undefined: %d\n", skipped, undefined)
}

// PrintRecord prints a stored run from its persisted summary.
func (c *Console) PrintRecord(run domain.RunRecord) {
	c.PrintRun(run, backtest.Metrics{
		TotalReturn:      run.TotalReturn,
		MarketReturn:     run.MarketReturn,
		Outperformance:   run.TotalReturn - run.MarketReturn,
		AnnualizedReturn: run.AnnualizedReturn,
		Volatility:       run.Volatility,
		MaxDrawdown:      run.MaxDrawdown,
		Sharpe:           fromPtr(run.Sharpe),
		Sortino:          fromPtr(run.Sortino),
		Calmar:           fromPtr(run.Calmar),
		Trades:           run.Trades,
		TotalCost:        run.TotalCost,
	})
}

// PrintRuns prints stored run summaries.
func (c *Console) PrintRuns(runs []domain.RunRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Created", "Symbol", "Strategy", "Params", "Return", "Sharpe", "Max DD")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.CreatedAt.Format(time.DateTime),
			r.Symbol,
			r.Strategy,
			strategy.Params(r.Params).String(),
			pct(r.TotalReturn),
			ratioPtr(r.Sharpe),
			pct(r.MaxDrawdown),
		)
	}
	table.Render()
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

func ratio(v optional.Option[float64]) string {
	if v.IsNone() {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v.Unwrap())
}

func ratioPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}

func fromPtr(v *float64) optional.Option[float64] {
	if v == nil {
		return optional.None[float64]()
	}
	return optional.Some(*v)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
