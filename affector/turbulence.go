package affector

import (
	"github.com/ojrac/opensimplex-go"
	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Turbulence pushes particles along a simplex noise field that drifts
// over time.
type Turbulence struct {
	Species   *particle.Model
	Strength  float64
	Frequency float64
	// Speed is how fast the field scrolls, in noise units per second.
	Speed float64

	noise   opensimplex.Noise
	toLocal particle.Transform
	toSpace particle.Transform
	time    float64
}

// NewTurbulence returns a turbulence affector seeded with seed.
func NewTurbulence(species *particle.Model, strength, frequency float64, seed int64) *Turbulence {
	return &Turbulence{
		Species:   species,
		Strength:  strength,
		Frequency: frequency,
		Speed:     0.5,
		noise:     opensimplex.New(seed),
		toLocal:   particle.Identity(),
		toSpace:   particle.Identity(),
	}
}

// Model returns the affected species, nil for all.
func (tb *Turbulence) Model() *particle.Model { return tb.Species }

// Begin records the affector space so the field is sampled in it.
func (tb *Turbulence) Begin(t particle.Transform) {
	tb.toSpace = t
	tb.toLocal = t.Inverse()
}

// Advance scrolls the field; the scene calls it once per frame.
func (tb *Turbulence) Advance(dt float64) { tb.time += dt * tb.Speed }

// Field returns the noise acceleration at a point in affector space.
// Each axis reads the field at a decorrelated offset.
func (tb *Turbulence) Field(at r3.Vec) r3.Vec {
	if tb.noise == nil {
		tb.noise = opensimplex.New(0)
	}
	x, y, z := at.X*tb.Frequency, at.Y*tb.Frequency, at.Z*tb.Frequency
	w := tb.time
	return r3.Scale(tb.Strength, r3.Vec{
		X: tb.noise.Eval3(x+w, y, z),
		Y: tb.noise.Eval3(x+31.4, y+w, z-17.2),
		Z: tb.noise.Eval3(x-12.9, y+57.1, z+w),
	})
}

// Apply adds the field acceleration at the particle's position.
func (tb *Turbulence) Apply(p *particle.Particle, dt float64) {
	f := tb.Field(tb.toLocal.Apply(p.Position))
	p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, tb.toSpace.ApplyVector(f)))
}
