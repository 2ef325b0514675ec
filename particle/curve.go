package particle

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Interpolator is an external curve consulted with a normalized life
// fraction in [0, 1].
type Interpolator interface {
	Evaluate(t float64) float64
}

// InterpolatorFunc adapts a plain function to Interpolator.
type InterpolatorFunc func(t float64) float64

// Evaluate calls f(t).
func (f InterpolatorFunc) Evaluate(t float64) float64 { return f(t) }

// Keyframe is a single (time, value) control point of a Curve.
type Keyframe struct {
	Time  float64 `yaml:"t"`
	Value float64 `yaml:"v"`
}

// Easing shapes the ratio between two neighbouring keyframes.
type Easing uint8

const (
	Linear Easing = iota
	EaseIn
	EaseOut
	FastInOutWeak
)

var easingNames = [...]string{
	Linear:        "Linear",
	EaseIn:        "EaseIn",
	EaseOut:       "EaseOut",
	FastInOutWeak: "FastInOutWeak",
}

// String returns the easing keyword.
func (e Easing) String() string {
	if int(e) >= len(easingNames) {
		return "Linear"
	}
	return easingNames[e]
}

// ParseEasing looks up an easing keyword. Unknown keywords fall back to Linear.
func ParseEasing(s string) (Easing, bool) {
	for i, n := range easingNames {
		if strings.EqualFold(n, s) {
			return Easing(i), true
		}
	}
	return Linear, false
}

func (e Easing) apply(r float64) float64 {
	switch e {
	case EaseIn:
		return r * r
	case EaseOut:
		return 1 - (1-r)*(1-r)
	case FastInOutWeak:
		return r * r * (3 - 2*r)
	default:
		return r
	}
}

// Curve is a piecewise keyframe curve over normalized time.
// Keys must be sorted by Time; NewCurve sorts them.
type Curve struct {
	Keys   []Keyframe
	Easing Easing
}

// NewCurve builds a curve from keys, sorting them by time.
func NewCurve(easing Easing, keys ...Keyframe) *Curve {
	sorted := make([]Keyframe, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &Curve{Keys: sorted, Easing: easing}
}

// Evaluate returns the curve value at t, clamped to [0, 1].
// Before the first key the first value holds; after the last key the last value holds.
func (c *Curve) Evaluate(t float64) float64 {
	keys := c.Keys
	switch len(keys) {
	case 0:
		return 0
	case 1:
		return keys[0].Value
	}

	t = math.Max(0, math.Min(1, t))
	if t <= keys[0].Time {
		return keys[0].Value
	}

	for i := 0; i < len(keys)-1; i++ {
		k0, k1 := keys[i], keys[i+1]
		if t < k0.Time || t > k1.Time {
			continue
		}
		span := k1.Time - k0.Time
		if span <= 0 {
			return k0.Value
		}
		r := c.Easing.apply((t - k0.Time) / span)
		return k0.Value + r*(k1.Value-k0.Value)
	}

	return keys[len(keys)-1].Value
}

// ParseCurve parses "time,value" pairs separated by spaces, optionally
// followed or preceded by an easing keyword, e.g. "0,1 0.6,0.8 1,0 EaseOut".
// Times above 1 are read as percentages.
func ParseCurve(s string) (*Curve, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty curve")
	}

	easing := Linear
	keys := make([]Keyframe, 0, len(fields))
	for _, f := range fields {
		if e, ok := ParseEasing(f); ok {
			easing = e
			continue
		}
		pair := strings.Split(f, ",")
		if len(pair) != 2 {
			return nil, fmt.Errorf("curve key %q: want time,value", f)
		}
		tm, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("curve key %q: %w", f, err)
		}
		v, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("curve key %q: %w", f, err)
		}
		if tm > 1 {
			tm /= 100
		}
		keys = append(keys, Keyframe{Time: tm, Value: v})
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("curve %q has no keys", s)
	}
	return NewCurve(easing, keys...), nil
}
