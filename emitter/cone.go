// Package emitter provides concrete particle emitters and the zones they
// sample spawn positions from.
package emitter

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cone emits particles from a zone with velocities spread inside a cone
// around Direction. Positions and velocities are given in the emitter's
// node space and mapped through the transform passed to Begin.
type Cone struct {
	Name      string
	Species   *particle.Model
	Rate      float64
	Zone      particle.Zone
	Direction r3.Vec
	// Spread is the cone half-angle in radians.
	Spread   float64
	SpeedMin float64
	SpeedMax float64
	// Inherit adds this fraction of the zone normal to the direction,
	// so box emitters push particles outward.
	Inherit float64

	t particle.Transform
}

// NewCone returns an upward cone emitter at the node origin.
func NewCone(species *particle.Model, flow float64) *Cone {
	return &Cone{
		Species:   species,
		Rate:      flow,
		Zone:      Point{},
		Direction: up,
		SpeedMin:  1,
		SpeedMax:  1,
		t:         particle.Identity(),
	}
}

// Model returns the species fed by the emitter.
func (c *Cone) Model() *particle.Model { return c.Species }

// Flow returns the emission rate in particles per second.
func (c *Cone) Flow() float64 { return c.Rate }

// SetFlow changes the emission rate.
func (c *Cone) SetFlow(f float64) { c.Rate = math.Max(0, f) }

// Begin sets the node-to-particle-space transform.
func (c *Cone) Begin(t particle.Transform) { c.t = t }

// Emit places p in the zone and launches it inside the cone.
func (c *Cone) Emit(p *particle.Particle, rng *rand.Rand) {
	zone := c.Zone
	if zone == nil {
		zone = Point{}
	}
	local := zone.Sample(rng)

	axis := c.Direction
	if r3.Norm(axis) == 0 {
		axis = up
	}
	axis = r3.Unit(axis)
	if c.Inherit != 0 {
		if n := r3.Add(axis, r3.Scale(c.Inherit, zone.Normal(local))); r3.Norm(n) > 0 {
			axis = r3.Unit(n)
		}
	}

	dir := randomInCone(axis, c.Spread, rng)
	speed := c.SpeedMin + rng.Float64()*(c.SpeedMax-c.SpeedMin)

	p.Position = c.t.Apply(local)
	p.Velocity = c.t.ApplyVector(r3.Scale(speed, dir))
}

// randomInCone draws a unit vector uniformly over the spherical cap of
// half-angle spread around the unit vector axis.
func randomInCone(axis r3.Vec, spread float64, rng *rand.Rand) r3.Vec {
	if spread <= 0 {
		return axis
	}
	spread = math.Min(spread, math.Pi)
	phi := rng.Float64() * 2 * math.Pi
	cosMin := math.Cos(spread)
	cosTheta := cosMin + rng.Float64()*(1-cosMin)
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))

	ref := up
	if math.Abs(r3.Dot(axis, ref)) > 0.99 {
		ref = r3.Vec{X: 1}
	}
	right := r3.Unit(r3.Cross(axis, ref))
	ortho := r3.Unit(r3.Cross(right, axis))

	v := r3.Add(r3.Scale(cosTheta, axis),
		r3.Add(r3.Scale(sinTheta*math.Cos(phi), right), r3.Scale(sinTheta*math.Sin(phi), ortho)))
	return r3.Unit(v)
}
