// Package affector provides concrete particle affectors. Each acts in the
// space handed to Begin: the subtree root for global bindings, the
// affector's node for local ones.
package affector

import (
	"math"

	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Force adds a constant acceleration, expressed in affector space.
type Force struct {
	Species      *particle.Model
	Acceleration r3.Vec

	accel r3.Vec
}

// Model returns the affected species, nil for all.
func (f *Force) Model() *particle.Model { return f.Species }

// Begin maps the acceleration into particle space.
func (f *Force) Begin(t particle.Transform) { f.accel = t.ApplyVector(f.Acceleration) }

// Apply integrates the acceleration.
func (f *Force) Apply(p *particle.Particle, dt float64) {
	p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, f.accel))
}

// Damping slows particles exponentially: v *= exp(-Rate·dt).
type Damping struct {
	Species *particle.Model
	Rate    float64
}

// Model returns the affected species, nil for all.
func (d *Damping) Model() *particle.Model { return d.Species }

// Begin is a no-op; damping is space independent.
func (d *Damping) Begin(particle.Transform) {}

// Apply scales the velocity.
func (d *Damping) Apply(p *particle.Particle, dt float64) {
	if d.Rate <= 0 {
		return
	}
	p.Velocity = r3.Scale(math.Exp(-d.Rate*dt), p.Velocity)
}

// KillPlane kills particles that cross to the back of a plane.
type KillPlane struct {
	Species *particle.Model
	Point   r3.Vec
	Normal  r3.Vec

	point  r3.Vec
	normal r3.Vec
}

// Model returns the affected species, nil for all.
func (k *KillPlane) Model() *particle.Model { return k.Species }

// Begin maps the plane into particle space.
func (k *KillPlane) Begin(t particle.Transform) {
	k.point = t.Apply(k.Point)
	n := t.ApplyVector(k.Normal)
	if r3.Norm(n) == 0 {
		n = r3.Vec{Y: 1}
	}
	k.normal = r3.Unit(n)
}

// Apply kills p when it is behind the plane.
func (k *KillPlane) Apply(p *particle.Particle, _ float64) {
	if r3.Dot(r3.Sub(p.Position, k.point), k.normal) < 0 {
		p.Kill()
	}
}
