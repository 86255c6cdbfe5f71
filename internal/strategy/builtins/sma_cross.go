// Package builtins provides built-in strategy implementations that ship with
// vecbt.
package builtins

import (
	"math"

	"vecbt/internal/indicator"
	"vecbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACrossName is the registry key of SMACross.
const SMACrossName = "sma-cross"

type smaCrossParams struct {
	Short int `validate:"gt=0,ltfield=Long"`
	Long  int `validate:"gt=0"`
}

// SMACross implements a simple moving average crossover strategy. It is long
// while the short-period SMA is above the long-period SMA and short
// otherwise.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) (*SMACross, error) {
	p := smaCrossParams{Short: short, Long: long}
	if err := strategy.Validate(p); err != nil {
		return nil, err
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// SMACrossFactory decodes {"short", "long"} and builds an SMACross.
func SMACrossFactory(params strategy.Params) (strategy.Strategy, error) {
	if err := params.Expect("short", "long"); err != nil {
		return nil, err
	}
	short, err := params.Int("short")
	if err != nil {
		return nil, err
	}
	long, err := params.Int("long")
	if err != nil {
		return nil, err
	}
	return NewSMACross(short, long)
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Positions returns +1 where SMA(short) > SMA(long), -1 elsewhere, and NaN
// until the long SMA is defined.
func (s *SMACross) Positions(closes []float64) ([]float64, error) {
	if err := strategy.CheckWindow("long", s.longPeriod, len(closes)); err != nil {
		return nil, err
	}
	fast := indicator.SMA(closes, s.shortPeriod)
	slow := indicator.SMA(closes, s.longPeriod)

	out := make([]float64, len(closes))
	for i := range closes {
		switch {
		case math.IsNaN(fast[i]) || math.IsNaN(slow[i]):
			out[i] = math.NaN()
		case fast[i] > slow[i]:
			out[i] = 1
		default:
			out[i] = -1
		}
	}
	return out, nil
}
