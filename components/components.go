// Package components defines the ECS components of the particle scene.
package components

import "github.com/pthm-cable/plume/particle"

// ParticleSystem marks a node that owns particle storage for one species.
type ParticleSystem struct {
	Group *particle.Group
	// Global systems keep particles in the subtree root's space, so they
	// trail behind a moving owner. Local systems move with the owner.
	Global bool
	// Space is the absolute transform of the particle space at the last update.
	Space particle.Transform
	// Seq is the attach order within the scene.
	Seq uint64
}

// EmitterRef attaches an emitter to a node.
type EmitterRef struct {
	Emitter particle.Emitter
	Seq     uint64 // attach order
}

// AffectorRef attaches an affector to a node. Global affectors act in the
// subtree root's space, local ones in their node's space.
type AffectorRef struct {
	Affector particle.Affector
	Global   bool
	Seq      uint64 // attach order
}
