package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/moznion/go-optional"
	"golang.org/x/sync/errgroup"

	"vecbt/internal/backtest"
	"vecbt/internal/domain"
	"vecbt/internal/strategy"
	"vecbt/internal/telemetry"
)

// ErrNoCandidates reports a sweep where no candidate produced a defined score.
var ErrNoCandidates = errors.New("no candidate produced a defined score")

// Evaluation outcomes.
const (
	OutcomeScored    = "scored"
	OutcomeUndefined = "undefined"
	OutcomeSkipped   = "skipped"
)

// Objective evaluates one parameter set. It must be safe for concurrent use.
type Objective interface {
	Evaluate(params strategy.Params) (backtest.Metrics, error)
}

// ObjectiveFunc adapts a function to Objective.
type ObjectiveFunc func(params strategy.Params) (backtest.Metrics, error)

// Evaluate calls f(params).
func (f ObjectiveFunc) Evaluate(params strategy.Params) (backtest.Metrics, error) { return f(params) }

// Config controls a sweep.
type Config struct {
	// Strategy labels telemetry and logs.
	Strategy string
	// Metric is the Metrics.Get name to optimize.
	Metric string
	// Minimize selects the lowest score instead of the highest.
	Minimize bool
	// Workers bounds concurrent evaluations; <= 0 uses runtime.NumCPU().
	Workers int
}

// Evaluation is the outcome of one candidate.
type Evaluation struct {
	Params  strategy.Params
	Score   optional.Option[float64]
	Metrics backtest.Metrics
	Outcome string
	Err     error
}

// Report holds every evaluation in grid order plus the selected optimum.
type Report struct {
	Metric      string
	Minimize    bool
	Evaluations []Evaluation
	Best        Evaluation
}

// Sweep evaluates every grid candidate and selects the best score. Candidates
// rejected with ErrInvalidParameters (e.g. short >= long) are skipped, and
// candidates with an undefined score are never selected. Ties go to the
// lexicographically smallest parameter set.
func Sweep(ctx context.Context, obj Objective, grid Grid, cfg Config, log *slog.Logger) (*Report, error) {
	if !validMetric(cfg.Metric) {
		return nil, domain.InvalidParamsf("unknown metric %q", cfg.Metric)
	}
	candidates, err := grid.Candidates()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	evals := make([]Evaluation, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, params := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev, err := evaluate(obj, params, cfg.Metric)
			if err != nil {
				return err
			}
			telemetry.RecordEvaluation(cfg.Strategy, ev.Outcome)
			evals[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Metric: cfg.Metric, Minimize: cfg.Minimize, Evaluations: evals}
	found := false
	for _, ev := range evals {
		if ev.Outcome != OutcomeScored {
			continue
		}
		if !found || better(ev, report.Best, cfg.Minimize) {
			report.Best = ev
			found = true
		}
	}
	if !found {
		return report, fmt.Errorf("%w: %d candidates on %s", ErrNoCandidates, len(evals), cfg.Metric)
	}

	log.Info("sweep complete",
		"strategy", cfg.Strategy,
		"metric", cfg.Metric,
		"candidates", len(evals),
		"best", report.Best.Params.String(),
		"score", report.Best.Score.Unwrap(),
	)
	return report, nil
}

// evaluate scores one candidate. Invalid parameters and insufficient data are
// expected outcomes of a grid and are recorded; anything else aborts the sweep.
func evaluate(obj Objective, params strategy.Params, metric string) (Evaluation, error) {
	ev := Evaluation{Params: params, Score: optional.None[float64]()}
	m, err := obj.Evaluate(params)
	switch {
	case errors.Is(err, domain.ErrInvalidParameters), errors.Is(err, domain.ErrInsufficientData):
		ev.Outcome = OutcomeSkipped
		ev.Err = err
		return ev, nil
	case err != nil:
		return ev, fmt.Errorf("evaluating %s: %w", params.String(), err)
	}

	ev.Metrics = m
	score, err := m.Get(metric)
	if err != nil {
		return ev, err
	}
	ev.Score = score
	if score.IsNone() {
		ev.Outcome = OutcomeUndefined
		ev.Err = fmt.Errorf("%w: %s", domain.ErrUndefinedMetric, metric)
		return ev, nil
	}
	ev.Outcome = OutcomeScored
	return ev, nil
}

func better(a, b Evaluation, minimize bool) bool {
	as, bs := a.Score.Unwrap(), b.Score.Unwrap()
	if as != bs {
		if minimize {
			return as < bs
		}
		return as > bs
	}
	return lessParams(a.Params, b.Params)
}

func validMetric(name string) bool {
	for _, n := range backtest.MetricNames {
		if n == name {
			return true
		}
	}
	return false
}
