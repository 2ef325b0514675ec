// Package scene holds the node hierarchy that owns particle systems,
// emitters and affectors, and runs the per-frame animate pass.
package scene

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/mlange-42/ark/ecs"
	"github.com/pthm-cable/plume/components"
	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Advancer is implemented by affectors with their own clock. The scene
// advances each once per frame before any group steps.
type Advancer interface {
	Advance(dt float64)
}

// System describes one particle system node after an update.
type System struct {
	Entity ecs.Entity
	Name   string
	Group  *particle.Group
	// Space maps particle positions to world space.
	Space particle.Transform

	seq uint64
}

// StepObserver is told, after each group update, how many live particles
// the group stepped and how long the update took.
type StepObserver func(sys System, stepped int, d time.Duration)

type emitterEntry struct {
	entity ecs.Entity
	ref    *components.EmitterRef
	abs    particle.Transform
}

type affectorEntry struct {
	entity ecs.Entity
	ref    *components.AffectorRef
	abs    particle.Transform
}

// Scene is a transform hierarchy stored in an ark world.
type Scene struct {
	world *ecs.World

	nodeMapper  *ecs.Map2[components.Node, components.Absolute]
	nodeMap     *ecs.Map1[components.Node]
	absMap      *ecs.Map1[components.Absolute]
	parentMap   *ecs.Map1[components.Parent]
	orbitMap    *ecs.Map1[components.Orbit]
	systemMap   *ecs.Map1[components.ParticleSystem]
	emitterMap  *ecs.Map1[components.EmitterRef]
	affectorMap *ecs.Map1[components.AffectorRef]

	orbitFilter    *ecs.Filter2[components.Node, components.Orbit]
	systemFilter   *ecs.Filter1[components.ParticleSystem]
	emitterFilter  *ecs.Filter1[components.EmitterRef]
	affectorFilter *ecs.Filter1[components.AffectorRef]

	// order lists nodes with every parent before its children.
	order []ecs.Entity
	time  float64
	// seq numbers attachments so collected emitters and affectors keep
	// attach order whatever archetype their node lands in.
	seq   uint64

	emitters  []emitterEntry
	affectors []affectorEntry
	systems   []System
	observer  StepObserver
}

// New creates an empty scene.
func New() *Scene {
	world := ecs.NewWorld()
	return &Scene{
		world:          world,
		nodeMapper:     ecs.NewMap2[components.Node, components.Absolute](world),
		nodeMap:        ecs.NewMap1[components.Node](world),
		absMap:         ecs.NewMap1[components.Absolute](world),
		parentMap:      ecs.NewMap1[components.Parent](world),
		orbitMap:       ecs.NewMap1[components.Orbit](world),
		systemMap:      ecs.NewMap1[components.ParticleSystem](world),
		emitterMap:     ecs.NewMap1[components.EmitterRef](world),
		affectorMap:    ecs.NewMap1[components.AffectorRef](world),
		orbitFilter:    ecs.NewFilter2[components.Node, components.Orbit](world),
		systemFilter:   ecs.NewFilter1[components.ParticleSystem](world),
		emitterFilter:  ecs.NewFilter1[components.EmitterRef](world),
		affectorFilter: ecs.NewFilter1[components.AffectorRef](world),
	}
}

// SetStepObserver registers fn to time every group update. nil disables it.
func (s *Scene) SetStepObserver(fn StepObserver) { s.observer = fn }

// World exposes the underlying ark world.
func (s *Scene) World() *ecs.World { return s.world }

// Time returns the accumulated scene time in seconds.
func (s *Scene) Time() float64 { return s.time }

// Len returns the number of nodes.
func (s *Scene) Len() int { return len(s.order) }

// AddRoot adds a parentless node.
func (s *Scene) AddRoot(name string, local particle.Transform) ecs.Entity {
	e := s.nodeMapper.NewEntity(
		&components.Node{Name: name, Local: local},
		&components.Absolute{Transform: local},
	)
	s.order = append(s.order, e)
	return e
}

// AddChild adds a node under parent.
func (s *Scene) AddChild(parent ecs.Entity, name string, local particle.Transform) ecs.Entity {
	abs := local
	if s.world.Alive(parent) {
		abs = particle.Compose(s.absMap.Get(parent).Transform, local)
	}
	e := s.nodeMapper.NewEntity(
		&components.Node{Name: name, Local: local},
		&components.Absolute{Transform: abs},
	)
	s.parentMap.Add(e, &components.Parent{Entity: parent})
	s.order = append(s.order, e)
	return e
}

// Find returns the first node with the given name.
func (s *Scene) Find(name string) (ecs.Entity, bool) {
	for _, e := range s.order {
		if s.nodeMap.Get(e).Name == name {
			return e, true
		}
	}
	return ecs.Entity{}, false
}

// Name returns the node's name.
func (s *Scene) Name(e ecs.Entity) string { return s.nodeMap.Get(e).Name }

// SetLocal replaces the node's local transform.
func (s *Scene) SetLocal(e ecs.Entity, local particle.Transform) {
	s.nodeMap.Get(e).Local = local
}

// Local returns the node's local transform.
func (s *Scene) Local(e ecs.Entity) particle.Transform { return s.nodeMap.Get(e).Local }

// Absolute returns the node's world transform as of the last update.
func (s *Scene) Absolute(e ecs.Entity) particle.Transform { return s.absMap.Get(e).Transform }

// SetOrbit animates the node around a center.
func (s *Scene) SetOrbit(e ecs.Entity, orbit components.Orbit) {
	if s.orbitMap.HasAll(e) {
		*s.orbitMap.Get(e) = orbit
		return
	}
	s.orbitMap.Add(e, &orbit)
}

// ClearOrbit stops animating the node; it keeps its current local transform.
func (s *Scene) ClearOrbit(e ecs.Entity) {
	if s.orbitMap.HasAll(e) {
		s.orbitMap.Remove(e)
	}
}

// AttachEmitter attaches em to the node. A node holds one emitter.
func (s *Scene) AttachEmitter(e ecs.Entity, em particle.Emitter) {
	s.seq++
	s.emitterMap.Add(e, &components.EmitterRef{Emitter: em, Seq: s.seq})
}

// AttachAffector attaches a to the node. A node holds one affector.
func (s *Scene) AttachAffector(e ecs.Entity, a particle.Affector, global bool) {
	s.seq++
	s.affectorMap.Add(e, &components.AffectorRef{Affector: a, Global: global, Seq: s.seq})
}

// AttachSystem makes the node own g. Emitters and affectors in the node's
// subtree feed and act on it.
func (s *Scene) AttachSystem(e ecs.Entity, g *particle.Group, global bool) {
	s.seq++
	s.systemMap.Add(e, &components.ParticleSystem{Group: g, Global: global, Space: s.Absolute(e), Seq: s.seq})
}

// Parent returns the node's parent.
func (s *Scene) Parent(e ecs.Entity) (ecs.Entity, bool) {
	if !s.parentMap.HasAll(e) {
		return ecs.Entity{}, false
	}
	return s.parentMap.Get(e).Entity, true
}

// Root returns the top ancestor of e, or e itself.
func (s *Scene) Root(e ecs.Entity) ecs.Entity {
	for {
		p, ok := s.Parent(e)
		if !ok || !s.world.Alive(p) {
			return e
		}
		e = p
	}
}

// InSubtree reports whether e is ancestor or one of its descendants.
func (s *Scene) InSubtree(e, ancestor ecs.Entity) bool {
	for {
		if e == ancestor {
			return true
		}
		p, ok := s.Parent(e)
		if !ok || !s.world.Alive(p) {
			return false
		}
		e = p
	}
}

// Remove deletes e and its whole subtree, dropping any groups they own.
func (s *Scene) Remove(e ecs.Entity) {
	if !s.world.Alive(e) {
		return
	}
	doomed := make(map[ecs.Entity]bool)
	for _, n := range s.order {
		if s.InSubtree(n, e) {
			doomed[n] = true
		}
	}
	kept := s.order[:0]
	for _, n := range s.order {
		if !doomed[n] {
			kept = append(kept, n)
		}
	}
	s.order = kept
	s.systems = s.systems[:0]
	for n := range doomed {
		s.world.RemoveEntity(n)
	}
}

// FlowInto sums the flow of emitters in owner's subtree that feed m.
func (s *Scene) FlowInto(owner ecs.Entity, m *particle.Model) float64 {
	total := 0.0
	query := s.emitterFilter.Query()
	for query.Next() {
		ref := query.Get()
		if ref.Emitter.Model() == m && s.InSubtree(query.Entity(), owner) {
			total += ref.Emitter.Flow()
		}
	}
	return total
}

// Update runs one frame: orbit animation, transform propagation, affector
// clocks, then one Update per particle system.
func (s *Scene) Update(dt float64) {
	s.AdvanceClock(dt)
	s.Animate()
	s.Propagate()
	s.Simulate(dt)
}

// AdvanceClock moves scene time forward without touching nodes.
func (s *Scene) AdvanceClock(dt float64) { s.time += dt }

// Animate moves orbiting nodes to their position at the current time.
func (s *Scene) Animate() {
	query := s.orbitFilter.Query()
	for query.Next() {
		node, orbit := query.Get()
		node.Local.Translation = orbitPosition(orbit, s.time)
	}
}

func orbitPosition(o *components.Orbit, t float64) r3.Vec {
	axis := o.Axis
	if r3.Norm(axis) == 0 {
		axis = r3.Vec{Y: 1}
	}
	axis = r3.Unit(axis)
	ref := r3.Vec{X: 1}
	if math.Abs(r3.Dot(ref, axis)) > 0.9 {
		ref = r3.Vec{Z: 1}
	}
	base := r3.Unit(r3.Sub(ref, r3.Scale(r3.Dot(ref, axis), axis)))
	q := particle.AxisAngle(axis, o.Phase+o.Speed*t)
	return r3.Add(o.Center, r3.Scale(o.Radius, particle.Rotate(q, base)))
}

// Propagate recomputes absolute transforms along parent chains.
func (s *Scene) Propagate() {
	for _, e := range s.order {
		local := s.nodeMap.Get(e).Local
		abs := local
		if p, ok := s.Parent(e); ok && s.world.Alive(p) {
			abs = particle.Compose(s.absMap.Get(p).Transform, local)
		}
		s.absMap.Get(e).Transform = abs
	}
}

// Simulate builds the SystemData of every particle system and steps its
// group. Transforms must be current.
func (s *Scene) Simulate(dt float64) {
	s.collect()

	for _, a := range s.affectors {
		if adv, ok := a.ref.Affector.(Advancer); ok {
			adv.Advance(dt)
		}
	}

	for i := range s.systems {
		sys := &s.systems[i]
		ps := s.systemMap.Get(sys.Entity)
		root := s.Root(sys.Entity)
		data := particle.SystemData{
			Root:  s.Absolute(root),
			Owner: s.Absolute(sys.Entity),
		}
		data.Space = data.Owner
		if ps.Global {
			data.Space = data.Root
		}

		for _, em := range s.emitters {
			if s.InSubtree(em.entity, sys.Entity) {
				data.Emitters = append(data.Emitters, particle.EmitterBinding{Emitter: em.ref.Emitter, Transform: em.abs})
			}
		}
		for _, af := range s.affectors {
			if !s.InSubtree(af.entity, sys.Entity) {
				continue
			}
			if af.ref.Global {
				data.GlobalAffectors = append(data.GlobalAffectors, particle.AffectorBinding{Affector: af.ref.Affector, Transform: data.Root})
			} else {
				data.LocalAffectors = append(data.LocalAffectors, particle.AffectorBinding{Affector: af.ref.Affector, Transform: af.abs})
			}
		}

		if s.observer == nil {
			ps.Group.Update(dt, data)
		} else {
			stepped := ps.Group.Count()
			start := time.Now()
			ps.Group.Update(dt, data)
			elapsed := time.Since(start)
			sys.Space = data.Space
			s.observer(*sys, stepped, elapsed)
		}
		ps.Space = data.Space
		sys.Space = data.Space
	}
}

// collect snapshots systems, emitters and affectors so groups step outside
// of any query.
func (s *Scene) collect() {
	s.systems = s.systems[:0]
	sq := s.systemFilter.Query()
	for sq.Next() {
		e := sq.Entity()
		ps := sq.Get()
		s.systems = append(s.systems, System{Entity: e, Name: s.nodeMap.Get(e).Name, Group: ps.Group, Space: ps.Space, seq: ps.Seq})
	}
	slices.SortFunc(s.systems, func(a, b System) int { return cmp.Compare(a.seq, b.seq) })

	s.emitters = s.emitters[:0]
	eq := s.emitterFilter.Query()
	for eq.Next() {
		e := eq.Entity()
		s.emitters = append(s.emitters, emitterEntry{entity: e, ref: eq.Get(), abs: s.absMap.Get(e).Transform})
	}
	slices.SortFunc(s.emitters, func(a, b emitterEntry) int { return cmp.Compare(a.ref.Seq, b.ref.Seq) })

	s.affectors = s.affectors[:0]
	aq := s.affectorFilter.Query()
	for aq.Next() {
		e := aq.Entity()
		s.affectors = append(s.affectors, affectorEntry{entity: e, ref: aq.Get(), abs: s.absMap.Get(e).Transform})
	}
	slices.SortFunc(s.affectors, func(a, b affectorEntry) int { return cmp.Compare(a.ref.Seq, b.ref.Seq) })
}

// Systems returns the particle systems as of the last update, in attach order.
func (s *Scene) Systems() []System {
	if len(s.systems) == 0 {
		s.collect()
	}
	return s.systems
}
