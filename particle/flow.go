package particle

import "math"

// flowEpsilon absorbs float rounding so that a counter which should sit at
// an exact integer (5 × 1/3 × 3) is not floored one short.
const flowEpsilon = 1e-9

// FlowAccumulator converts a continuous emission rate into whole spawn
// counts. The fractional remainder is carried forever, so emission does not
// drift with step size.
type FlowAccumulator struct {
	frac float64
}

// Step adds flow*dt and returns the whole particles now due.
// Negative or NaN flow and dt count as zero.
func (a *FlowAccumulator) Step(flow, dt float64) int {
	if !(flow > 0) || !(dt > 0) || math.IsInf(flow, 0) || math.IsInf(dt, 0) {
		return 0
	}
	a.frac += flow * dt
	n := math.Floor(a.frac + flowEpsilon)
	if n <= 0 {
		return 0
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	a.frac -= n
	return int(n)
}

// Fraction returns the carried remainder.
func (a *FlowAccumulator) Fraction() float64 { return a.frac }

// Reset clears the remainder.
func (a *FlowAccumulator) Reset() { a.frac = 0 }
