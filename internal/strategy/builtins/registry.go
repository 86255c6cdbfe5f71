package builtins

import "vecbt/internal/strategy"

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, SMACrossFactory)
	r.Register(MomentumName, MomentumFactory)
	r.Register(MeanReversionName, MeanReversionFactory)
}

// NewRegistry returns a Registry preloaded with the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
