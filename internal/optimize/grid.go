// Package optimize searches a discrete parameter grid for the strategy
// parameters that score best on one metric.
package optimize

import (
	"fmt"
	"math"
	"sort"

	"vecbt/internal/domain"
	"vecbt/internal/strategy"
)

// maxCandidates bounds the size of a grid.
const maxCandidates = 1_000_000

// Range is a half-open arithmetic range [Start, Stop) advanced by Step.
type Range struct {
	Start float64 `yaml:"start" json:"start"`
	Stop  float64 `yaml:"stop" json:"stop"`
	Step  float64 `yaml:"step" json:"step"`
}

// Values expands the range. Step must be positive and Stop above Start.
func (r Range) Values() ([]float64, error) {
	if math.IsNaN(r.Start) || math.IsNaN(r.Stop) || math.IsNaN(r.Step) || r.Step <= 0 {
		return nil, domain.InvalidParamsf("range step must be positive, got %v", r.Step)
	}
	if r.Stop <= r.Start {
		return nil, domain.InvalidParamsf("range stop %v must exceed start %v", r.Stop, r.Start)
	}
	n := int(math.Ceil((r.Stop - r.Start) / r.Step))
	if n > maxCandidates {
		return nil, domain.InvalidParamsf("range yields %d values, limit is %d", n, maxCandidates)
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		// Multiplying avoids drift from repeated addition.
		v := r.Start + float64(i)*r.Step
		if v >= r.Stop {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// Grid maps each parameter name to the range it is searched over.
type Grid map[string]Range

// Candidates returns the Cartesian product of the grid. Parameter names are
// walked in sorted order and values ascend, so the sequence is reproducible.
func (g Grid) Candidates() ([]strategy.Params, error) {
	if len(g) == 0 {
		return nil, domain.InvalidParamsf("empty parameter grid")
	}
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	axes := make([][]float64, len(keys))
	total := 1
	for i, k := range keys {
		vals, err := g[k].Values()
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", k, err)
		}
		axes[i] = vals
		total *= len(vals)
		if total > maxCandidates {
			return nil, domain.InvalidParamsf("grid yields more than %d candidates", maxCandidates)
		}
	}

	out := make([]strategy.Params, 0, total)
	idx := make([]int, len(keys))
	for {
		p := make(strategy.Params, len(keys))
		for i, k := range keys {
			p[k] = axes[i][idx[i]]
		}
		out = append(out, p)

		// Odometer increment, last key fastest.
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out, nil
		}
	}
}

// lessParams orders parameter sets lexicographically by value, keys taken in
// sorted order.
func lessParams(a, b strategy.Params) bool {
	keys := a.Keys()
	for _, k := range b.Keys() {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		av, aok := a[k]
		bv, bok := b[k]
		if aok != bok {
			return !aok
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}
