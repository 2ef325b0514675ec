// Package camera provides an orbit camera for viewing particle scenes.
package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var worldUp = r3.Vec{Y: 1}

// Camera orbits a target point. Yaw turns around the world up axis,
// pitch tilts toward it, distance is the zoom.
type Camera struct {
	Target   r3.Vec
	Yaw      float64 // radians
	Pitch    float64 // radians
	Distance float64

	// FovY is the vertical field of view in radians.
	FovY float64

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float64

	// Distance constraints
	MinDistance, MaxDistance float64
}

const (
	defaultDistance = 12.0
	defaultPitch    = 0.35
	maxPitch        = math.Pi/2 - 0.01
	nearPlane       = 0.05
)

// New creates a camera looking at the origin from the default distance.
func New(viewportW, viewportH float64) *Camera {
	return &Camera{
		Pitch:       defaultPitch,
		Distance:    defaultDistance,
		FovY:        math.Pi / 4,
		ViewportW:   viewportW,
		ViewportH:   viewportH,
		MinDistance: 1,
		MaxDistance: 200,
	}
}

// Eye returns the camera position.
func (c *Camera) Eye() r3.Vec {
	cp := math.Cos(c.Pitch)
	dir := r3.Vec{X: cp * math.Sin(c.Yaw), Y: math.Sin(c.Pitch), Z: cp * math.Cos(c.Yaw)}
	return r3.Add(c.Target, r3.Scale(c.Distance, dir))
}

// Basis returns the forward, right and up unit vectors of the view.
func (c *Camera) Basis() (forward, right, up r3.Vec) {
	forward = r3.Unit(r3.Sub(c.Target, c.Eye()))
	right = r3.Unit(r3.Cross(forward, worldUp))
	up = r3.Cross(right, forward)
	return forward, right, up
}

func (c *Camera) focal() float64 {
	return (c.ViewportH / 2) / math.Tan(c.FovY/2)
}

// WorldToScreen projects a world point. ok is false for points behind the
// near plane.
func (c *Camera) WorldToScreen(p r3.Vec) (sx, sy float64, ok bool) {
	forward, right, up := c.Basis()
	d := r3.Sub(p, c.Eye())
	z := r3.Dot(d, forward)
	if z <= nearPlane {
		return 0, 0, false
	}
	f := c.focal() / z
	sx = c.ViewportW/2 + r3.Dot(d, right)*f
	sy = c.ViewportH/2 - r3.Dot(d, up)*f
	return sx, sy, true
}

// ScreenToWorld returns the world point under a screen position at the
// given depth along the view direction.
func (c *Camera) ScreenToWorld(sx, sy, depth float64) r3.Vec {
	forward, right, up := c.Basis()
	k := depth / c.focal()
	p := r3.Add(c.Eye(), r3.Scale(depth, forward))
	p = r3.Add(p, r3.Scale((sx-c.ViewportW/2)*k, right))
	return r3.Add(p, r3.Scale(-(sy-c.ViewportH/2)*k, up))
}

// ProjectedSize returns the on-screen size of a world-space length at p.
func (c *Camera) ProjectedSize(p r3.Vec, size float64) float64 {
	forward, _, _ := c.Basis()
	z := r3.Dot(r3.Sub(p, c.Eye()), forward)
	if z <= nearPlane {
		return 0
	}
	return size * c.focal() / z
}

// IsVisible returns true if a sphere at p with the given radius could be
// on screen (conservative check for culling).
func (c *Camera) IsVisible(p r3.Vec, radius float64) bool {
	forward, right, up := c.Basis()
	d := r3.Sub(p, c.Eye())
	z := r3.Dot(d, forward)
	if z+radius <= nearPlane {
		return false
	}
	z = math.Max(z, nearPlane)
	halfH := z*math.Tan(c.FovY/2) + radius
	halfW := halfH*c.ViewportW/c.ViewportH + radius
	return math.Abs(r3.Dot(d, right)) <= halfW && math.Abs(r3.Dot(d, up)) <= halfH
}

// Orbit turns the camera around the target. Pitch is clamped short of the poles.
func (c *Camera) Orbit(dYaw, dPitch float64) {
	c.Yaw = math.Mod(c.Yaw+dYaw, 2*math.Pi)
	c.Pitch = math.Max(-maxPitch, math.Min(maxPitch, c.Pitch+dPitch))
}

// Pan moves the target in the view plane by screen-space pixels.
func (c *Camera) Pan(dx, dy float64) {
	_, right, up := c.Basis()
	k := c.Distance / c.focal()
	c.Target = r3.Add(c.Target, r3.Scale(-dx*k, right))
	c.Target = r3.Add(c.Target, r3.Scale(dy*k, up))
}

// SetDistance sets the distance, clamped to constraints.
func (c *Camera) SetDistance(d float64) {
	c.Distance = math.Max(c.MinDistance, math.Min(c.MaxDistance, d))
}

// ZoomAt scales the distance by factor (below 1 moves closer).
func (c *Camera) ZoomAt(factor float64) {
	c.SetDistance(c.Distance * factor)
}

// Frame targets the center of a bounding box and backs off far enough to
// fit its bounding sphere vertically.
func (c *Camera) Frame(min, max r3.Vec) {
	c.Target = r3.Scale(0.5, r3.Add(min, max))
	radius := r3.Norm(r3.Sub(max, min)) / 2
	if radius <= 0 {
		return
	}
	c.SetDistance(radius / math.Sin(c.FovY/2))
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(w, h float64) {
	c.ViewportW = w
	c.ViewportH = h
}

// Reset returns to the default view of the origin.
func (c *Camera) Reset() {
	c.Target = r3.Vec{}
	c.Yaw = 0
	c.Pitch = defaultPitch
	c.Distance = defaultDistance
}
