package particle

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// Emitter spawns particles of one species. Groups key per-emitter state by
// the emitter value, so implementations must be comparable (use pointers).
type Emitter interface {
	// Model is the species this emitter feeds.
	Model() *Model
	// Flow is the emission rate in particles per second.
	Flow() float64
	// Begin sets the emitter-to-particle-space transform for the next Emit.
	Begin(t Transform)
	// Emit writes the initial position and velocity of p.
	Emit(p *Particle, rng *rand.Rand)
}

// Affector mutates live particles each step.
type Affector interface {
	// Model is the species affected; nil affects every species.
	Model() *Model
	// Begin sets the affector-to-particle-space transform for this step.
	Begin(t Transform)
	// Apply mutates p. Killing p stops the remaining affectors for it.
	Apply(p *Particle, dt float64)
}

// Zone is a spatial sampler used by emitters.
type Zone interface {
	Sample(rng *rand.Rand) r3.Vec
	Normal(at r3.Vec) r3.Vec
	Contains(at r3.Vec) bool
}

// EmitterBinding pairs an emitter with its node's absolute transform.
type EmitterBinding struct {
	Emitter   Emitter
	Transform Transform
}

// AffectorBinding pairs an affector with the absolute transform of the space
// it acts in.
type AffectorBinding struct {
	Affector  Affector
	Transform Transform
}

// SystemData is everything a group needs from the scene for one step.
type SystemData struct {
	// Root is the absolute transform of the subtree root.
	Root Transform
	// Owner is the absolute transform of the node owning the group.
	Owner Transform
	// Space is the absolute transform of the space particles live in:
	// Owner for local systems, Root for global ones.
	Space Transform

	Emitters []EmitterBinding
	// GlobalAffectors act in the Root space, LocalAffectors in their own node's.
	GlobalAffectors []AffectorBinding
	LocalAffectors  []AffectorBinding
}

// NewSystemData returns SystemData with identity transforms.
func NewSystemData() SystemData {
	return SystemData{Root: Identity(), Owner: Identity(), Space: Identity()}
}

// Visitor reads a group's live particles between steps.
type Visitor interface {
	VisitParticle(g *Group, p *Particle)
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(g *Group, p *Particle)

// VisitParticle calls f(g, p).
func (f VisitorFunc) VisitParticle(g *Group, p *Particle) { f(g, p) }
