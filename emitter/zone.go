package emitter

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

var up = r3.Vec{Y: 1}

// Point is a zone collapsed to a single location.
type Point struct {
	At r3.Vec
}

// Sample always returns the point.
func (z Point) Sample(*rand.Rand) r3.Vec { return z.At }

// Normal points away from the zone, or up when at is the point itself.
func (z Point) Normal(at r3.Vec) r3.Vec {
	d := r3.Sub(at, z.At)
	if r3.Norm(d) == 0 {
		return up
	}
	return r3.Unit(d)
}

// Contains reports whether at coincides with the point.
func (z Point) Contains(at r3.Vec) bool {
	return r3.Norm(r3.Sub(at, z.At)) < 1e-9
}

// Box is an axis-aligned box sampled uniformly through its volume.
type Box struct {
	Min, Max r3.Vec
}

// NewBox returns a box centered on center with the given half extents.
func NewBox(center, half r3.Vec) Box {
	return Box{Min: r3.Sub(center, half), Max: r3.Add(center, half)}
}

// Sample draws a uniform point inside the box.
func (z Box) Sample(rng *rand.Rand) r3.Vec {
	return r3.Vec{
		X: z.Min.X + rng.Float64()*(z.Max.X-z.Min.X),
		Y: z.Min.Y + rng.Float64()*(z.Max.Y-z.Min.Y),
		Z: z.Min.Z + rng.Float64()*(z.Max.Z-z.Min.Z),
	}
}

// Normal returns the outward normal of the face nearest to at.
func (z Box) Normal(at r3.Vec) r3.Vec {
	faces := [6]struct {
		dist float64
		n    r3.Vec
	}{
		{math.Abs(at.X - z.Min.X), r3.Vec{X: -1}},
		{math.Abs(at.X - z.Max.X), r3.Vec{X: 1}},
		{math.Abs(at.Y - z.Min.Y), r3.Vec{Y: -1}},
		{math.Abs(at.Y - z.Max.Y), r3.Vec{Y: 1}},
		{math.Abs(at.Z - z.Min.Z), r3.Vec{Z: -1}},
		{math.Abs(at.Z - z.Max.Z), r3.Vec{Z: 1}},
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if faces[i].dist < faces[best].dist {
			best = i
		}
	}
	return faces[best].n
}

// Contains reports whether at lies inside or on the box.
func (z Box) Contains(at r3.Vec) bool {
	return at.X >= z.Min.X && at.X <= z.Max.X &&
		at.Y >= z.Min.Y && at.Y <= z.Max.Y &&
		at.Z >= z.Min.Z && at.Z <= z.Max.Z
}
