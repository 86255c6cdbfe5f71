package builtins

import (
	"math"

	"vecbt/internal/indicator"
	"vecbt/internal/strategy"
)

var _ strategy.Strategy = (*Momentum)(nil)

// MomentumName is the registry key of Momentum.
const MomentumName = "momentum"

type momentumParams struct {
	Window int `validate:"gt=0"`
}

// Momentum goes with the sign of the mean log return over the last window
// days: long after rising stretches, short after falling ones, flat when the
// mean is exactly zero.
type Momentum struct {
	window int
}

// NewMomentum creates a Momentum strategy averaging over window days.
func NewMomentum(window int) (*Momentum, error) {
	if err := strategy.Validate(momentumParams{Window: window}); err != nil {
		return nil, err
	}
	return &Momentum{window: window}, nil
}

// MomentumFactory decodes {"window"} and builds a Momentum.
func MomentumFactory(params strategy.Params) (strategy.Strategy, error) {
	if err := params.Expect("window"); err != nil {
		return nil, err
	}
	window, err := params.Int("window")
	if err != nil {
		return nil, err
	}
	return NewMomentum(window)
}

// Name returns "momentum".
func (m *Momentum) Name() string { return MomentumName }

// Positions returns sign(mean(log_return[t-window+1..t])). The first log
// return is undefined, so output is NaN through row window-1.
func (m *Momentum) Positions(closes []float64) ([]float64, error) {
	if err := strategy.CheckWindow("momentum", m.window, len(closes)); err != nil {
		return nil, err
	}
	returns := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = math.Log(closes[i] / closes[i-1])
	}
	return indicator.Sign(indicator.SMA(returns, m.window)), nil
}
