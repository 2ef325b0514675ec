package components

import (
	"github.com/mlange-42/ark/ecs"
	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Node is a scene node: its name and transform relative to the parent.
type Node struct {
	Name  string
	Local particle.Transform
}

// Parent links a node to its parent. Root nodes have none.
type Parent struct {
	Entity ecs.Entity
}

// Absolute holds the world transform, recomputed every frame.
type Absolute struct {
	Transform particle.Transform
}

// Orbit animates a node's local translation around Center.
type Orbit struct {
	Center r3.Vec
	Axis   r3.Vec  // rotation axis, defaults to +Y
	Radius float64 // distance from Center
	Speed  float64 // radians per second
	Phase  float64 // starting angle in radians
}
