package builtins

import (
	"math"

	"vecbt/internal/indicator"
	"vecbt/internal/strategy"
)

var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversionName is the registry key of MeanReversion.
const MeanReversionName = "mean-reversion"

type meanReversionParams struct {
	Window    int     `validate:"gt=1"`
	Threshold float64 `validate:"gt=0"`
}

// MeanReversion bets on a return to the moving average. The distance from the
// SMA is measured in rolling standard deviations: above +threshold it goes
// short, below -threshold it goes long, and it flattens when the distance
// crosses zero. Otherwise the previous position is held.
type MeanReversion struct {
	window    int
	threshold float64
}

// NewMeanReversion creates a MeanReversion strategy.
func NewMeanReversion(window int, threshold float64) (*MeanReversion, error) {
	p := meanReversionParams{Window: window, Threshold: threshold}
	if err := strategy.Validate(p); err != nil {
		return nil, err
	}
	return &MeanReversion{window: window, threshold: threshold}, nil
}

// MeanReversionFactory decodes {"window", "threshold"} and builds a
// MeanReversion.
func MeanReversionFactory(params strategy.Params) (strategy.Strategy, error) {
	if err := params.Expect("window", "threshold"); err != nil {
		return nil, err
	}
	window, err := params.Int("window")
	if err != nil {
		return nil, err
	}
	threshold, err := params.Float("threshold")
	if err != nil {
		return nil, err
	}
	return NewMeanReversion(window, threshold)
}

// Name returns "mean-reversion".
func (m *MeanReversion) Name() string { return MeanReversionName }

// Positions walks the z-scored distance from the SMA forward in time, so row
// t only sees closes[0..t].
func (m *MeanReversion) Positions(closes []float64) ([]float64, error) {
	if err := strategy.CheckWindow("mean-reversion", m.window, len(closes)); err != nil {
		return nil, err
	}
	mean := indicator.SMA(closes, m.window)
	std := indicator.RollingStd(closes, m.window)

	out := make([]float64, len(closes))
	prevPos, prevZ := 0.0, math.NaN()
	for i := range closes {
		if math.IsNaN(mean[i]) {
			out[i] = math.NaN()
			continue
		}
		z := 0.0
		if std[i] > 0 {
			z = (closes[i] - mean[i]) / std[i]
		}

		pos := prevPos
		switch {
		case z > m.threshold:
			pos = -1
		case z < -m.threshold:
			pos = 1
		case !math.IsNaN(prevZ) && z*prevZ < 0:
			pos = 0
		}
		out[i] = pos
		prevPos, prevZ = pos, z
	}
	return out, nil
}
