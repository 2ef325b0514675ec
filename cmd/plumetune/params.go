package main

import (
	"math"

	"github.com/pthm-cable/plume/config"
)

// Knob maps one unbounded search coordinate onto a bounded config value
// through a logistic curve, so every point CMA-ES proposes is valid.
type Knob struct {
	Name    string
	Path    string // config path, for reports
	Lo, Hi  float64
	Integer bool

	get func(*config.Config) float64
	set func(*config.Config, float64)
}

// Value returns the config value for search coordinate x.
func (k Knob) Value(x float64) float64 {
	v := k.Lo + (k.Hi-k.Lo)/(1+math.Exp(-x))
	if k.Integer {
		v = math.Round(v)
	}
	return v
}

// Coord returns the search coordinate for config value v. Values at or
// beyond the bounds map to ±6, where the curve is within 0.25% of them.
func (k Knob) Coord(v float64) float64 {
	const edge = 6
	p := (v - k.Lo) / (k.Hi - k.Lo)
	switch {
	case !(p > 0):
		return -edge
	case p >= 1:
		return edge
	}
	return max(-edge, min(edge, math.Log(p/(1-p))))
}

// Knobs is the ordered set of tuned config values.
type Knobs []Knob

// PoolKnobs tunes automatic pool sizing.
func PoolKnobs() Knobs {
	return Knobs{
		{
			Name: "quantile", Path: "capacity.quantile", Lo: 0.5, Hi: 0.999,
			get: func(c *config.Config) float64 { return c.Capacity.Quantile },
			set: func(c *config.Config, v float64) { c.Capacity.Quantile = v },
		},
		{
			Name: "min_capacity", Path: "capacity.min", Lo: 1, Hi: 256, Integer: true,
			get: func(c *config.Config) float64 { return float64(c.Capacity.Min) },
			set: func(c *config.Config, v float64) { c.Capacity.Min = uint32(v) },
		},
	}
}

// Values maps search coordinates to config values.
func (ks Knobs) Values(x []float64) []float64 {
	v := make([]float64, len(ks))
	for i, k := range ks {
		v[i] = k.Value(x[i])
	}
	return v
}

// Start returns the search coordinates of cfg's current values.
func (ks Knobs) Start(cfg *config.Config) []float64 {
	x := make([]float64, len(ks))
	for i, k := range ks {
		x[i] = k.Coord(k.get(cfg))
	}
	return x
}

// Apply writes the values for search coordinates x into cfg.
func (ks Knobs) Apply(cfg *config.Config, x []float64) {
	for i, k := range ks {
		k.set(cfg, k.Value(x[i]))
	}
}
