package particle

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultCapacityQuantile is the lifetime quantile used when sizing pools.
	DefaultCapacityQuantile = 0.9
	// MinAutoCapacity is the pool size used when flow or lifetime give no estimate.
	MinAutoCapacity = 16
	// maxAutoCapacity bounds the estimate against absurd flows.
	maxAutoCapacity = 1 << 24
)

// AutoCapacity estimates a pool size for model fed at flow particles per
// second: ceil(flow × q-quantile of the lifetime), treating lifetimes as
// uniform on [min, max]. This is a heuristic; a burst can still overflow it.
func AutoCapacity(m *Model, flow, q float64) uint32 {
	if !(q > 0 && q <= 1) {
		q = DefaultCapacityQuantile
	}
	if m.Immortal() {
		slog.Warn("auto capacity for immortal species, using minimum",
			"model", m.Name, "capacity", MinAutoCapacity)
		return MinAutoCapacity
	}
	if !(flow > 0) || math.IsInf(flow, 0) {
		slog.Warn("auto capacity without positive flow, using minimum",
			"model", m.Name, "flow", flow, "capacity", MinAutoCapacity)
		return MinAutoCapacity
	}

	lo, hi := m.Lifetime()
	life := hi
	if hi > lo {
		life = distuv.Uniform{Min: lo, Max: hi}.Quantile(q)
	}
	if !(life > 0) {
		slog.Warn("auto capacity with zero lifetime, using minimum",
			"model", m.Name, "capacity", MinAutoCapacity)
		return MinAutoCapacity
	}

	n := math.Ceil(flow * life)
	if n < 1 {
		n = 1
	}
	if n > maxAutoCapacity {
		n = maxAutoCapacity
	}
	return uint32(n)
}
