// Package strategy defines the vectorized Strategy interface and a Registry
// that builds named strategies from validated parameters.
package strategy

import (
	"fmt"
	"sort"

	"vecbt/internal/domain"
)

// Strategy turns a closing-price history into a position series.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Positions returns one position per input row, each in {-1, 0, +1}.
	// Rows without enough history are NaN. The position at row t may only
	// depend on closes[0..t]. Implementations must be pure.
	Positions(closes []float64) ([]float64, error)
}

// Factory builds a Strategy from parameters, validating them first.
type Factory func(params Params) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with params. Unknown names are reported as
// ErrInvalidParameters.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidParameters, name)
	}
	return f(params)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
