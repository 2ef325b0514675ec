// Package renderer turns live particle storage into flat draw instances.
// It only reads groups, between updates.
package renderer

import (
	"cmp"
	"math"
	"slices"

	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Instance is one particle ready to draw, in world space.
type Instance struct {
	Position     r3.Vec
	Color        [4]float64 // RGBA in [0, 1]
	Size         float64
	Angle        float64 // radians
	Sprite       int
	LifeFraction float64
}

// RGBA8 returns the color as 8-bit channels.
func (in Instance) RGBA8() [4]uint8 {
	var c [4]uint8
	for i, v := range in.Color {
		c[i] = uint8(math.Round(clamp01(v) * 255))
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractor is the visitor that reads particle attributes into instances.
type extractor struct {
	space particle.Transform
	scale float64
	dst   []Instance
}

func (x *extractor) VisitParticle(g *particle.Group, p *particle.Particle) {
	x.dst = append(x.dst, Instance{
		Position: x.space.Apply(p.Position),
		Color: [4]float64{
			clamp01(g.ReadValue(p, particle.Red)),
			clamp01(g.ReadValue(p, particle.Green)),
			clamp01(g.ReadValue(p, particle.Blue)),
			clamp01(g.ReadValue(p, particle.Alpha)),
		},
		Size:         math.Max(0, g.ReadValue(p, particle.Size)) * x.scale,
		Angle:        g.ReadValue(p, particle.Angle),
		Sprite:       int(math.Max(0, math.Floor(g.ReadValue(p, particle.TextureIndex)))),
		LifeFraction: p.LifeFraction(),
	})
}

// Extract appends one instance per live particle of g to dst. space maps
// the group's particle space to world space.
func Extract(g *particle.Group, space particle.Transform, dst []Instance) []Instance {
	x := extractor{
		space: space,
		scale: (math.Abs(space.Scale.X) + math.Abs(space.Scale.Y) + math.Abs(space.Scale.Z)) / 3,
		dst:   dst,
	}
	g.Visit(&x)
	return x.dst
}

// SortBackToFront orders instances by decreasing distance from eye, the
// order alpha blending needs.
func SortBackToFront(instances []Instance, eye r3.Vec) {
	slices.SortStableFunc(instances, func(a, b Instance) int {
		da := r3.Norm2(r3.Sub(a.Position, eye))
		db := r3.Norm2(r3.Sub(b.Position, eye))
		return cmp.Compare(db, da)
	})
}

// Bounds returns the axis-aligned box around the instances. ok is false
// when there are none.
func Bounds(instances []Instance) (min, max r3.Vec, ok bool) {
	if len(instances) == 0 {
		return min, max, false
	}
	min, max = instances[0].Position, instances[0].Position
	for _, in := range instances[1:] {
		p := in.Position
		min = r3.Vec{X: math.Min(min.X, p.X), Y: math.Min(min.Y, p.Y), Z: math.Min(min.Z, p.Z)}
		max = r3.Vec{X: math.Max(max.X, p.X), Y: math.Max(max.Y, p.Y), Z: math.Max(max.Z, p.Z)}
	}
	return min, max, true
}
