package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vecbt/internal/optimize"
)

// paramsFlag collects repeated name=value flags.
type paramsFlag map[string]float64

func (p *paramsFlag) String() string {
	if p == nil || len(*p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*p))
	for k := range *p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, (*p)[k])
	}
	return strings.Join(parts, ",")
}

func (p *paramsFlag) Set(s string) error {
	name, val, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("param %s: %w", name, err)
	}
	if *p == nil {
		*p = make(paramsFlag)
	}
	(*p)[name] = f
	return nil
}

// gridFlag collects repeated name=start:stop:step flags.
type gridFlag optimize.Grid

func (g *gridFlag) String() string {
	if g == nil || len(*g) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*g))
	for k := range *g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		r := (*g)[k]
		parts[i] = fmt.Sprintf("%s=%g:%g:%g", k, r.Start, r.Stop, r.Step)
	}
	return strings.Join(parts, ",")
}

func (g *gridFlag) Set(s string) error {
	name, bounds, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=start:stop:step, got %q", s)
	}
	fields := strings.Split(bounds, ":")
	if len(fields) != 3 {
		return fmt.Errorf("grid %s: want start:stop:step, got %q", name, bounds)
	}
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("grid %s: %w", name, err)
		}
		vals[i] = v
	}
	if *g == nil {
		*g = make(gridFlag)
	}
	(*g)[name] = optimize.Range{Start: vals[0], Stop: vals[1], Step: vals[2]}
	return nil
}
