package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"vecbt/internal/domain"
)

// Params is a named set of numeric strategy knobs, e.g. {"short": 42,
// "long": 252}.
type Params map[string]float64

var validate = validator.New()

// Clone returns an independent copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders p as "k1=v1,k2=v2" with sorted keys.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, ",")
}

// Expect fails with ErrInvalidParameters when p holds a key outside allowed
// or lacks one of them.
func (p Params) Expect(allowed ...string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
		if _, ok := p[k]; !ok {
			return domain.InvalidParamsf("missing parameter %q", k)
		}
	}
	for _, k := range p.Keys() {
		if _, ok := set[k]; !ok {
			return domain.InvalidParamsf("unknown parameter %q", k)
		}
	}
	return nil
}

// Int returns p[key] as an int. Non-integral or non-finite values fail.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, domain.InvalidParamsf("missing parameter %q", key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, domain.InvalidParamsf("parameter %q must be an integer, got %v", key, v)
	}
	return int(v), nil
}

// Float returns p[key]. Non-finite values fail.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, domain.InvalidParamsf("missing parameter %q", key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.InvalidParamsf("parameter %q must be finite, got %v", key, v)
	}
	return v, nil
}

// Validate runs struct-tag validation on a decoded parameter struct and maps
// failures onto ErrInvalidParameters.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value()))
		}
		return domain.InvalidParamsf("%s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
}

// CheckWindow rejects a window that leaves no defined output for n rows.
func CheckWindow(name string, window, n int) error {
	if window >= n {
		return domain.InvalidParamsf("%s window %d must be shorter than the series (%d rows)", name, window, n)
	}
	return nil
}
