package scene

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/pthm-cable/plume/components"
	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

type pointEmitter struct {
	model *particle.Model
	flow  float64
	t     particle.Transform
}

func (e *pointEmitter) Model() *particle.Model { return e.model }
func (e *pointEmitter) Flow() float64 { return e.flow }
func (e *pointEmitter) Begin(t particle.Transform) { e.t = t }
func (e *pointEmitter) Emit(p *particle.Particle, _ *rand.Rand) {
	p.Position = e.t.Apply(r3.Vec{})
}

type clockAffector struct {
	elapsed float64
	applied int
	begun   particle.Transform
}

func (a *clockAffector) Model() *particle.Model { return nil }
func (a *clockAffector) Begin(t particle.Transform) { a.begun = t }
func (a *clockAffector) Apply(*particle.Particle, float64) {
	a.applied++
}
func (a *clockAffector) Advance(dt float64) { a.elapsed += dt }

// namedAffector records its name into a shared log on every Apply.
type namedAffector struct {
	name string
	log  *[]string
}

func (a *namedAffector) Model() *particle.Model { return nil }
func (a *namedAffector) Begin(particle.Transform) {}
func (a *namedAffector) Apply(*particle.Particle, float64) {
	*a.log = append(*a.log, a.name)
}

func near(a, b r3.Vec) bool { return r3.Norm(r3.Sub(a, b)) < 1e-9 }

func TestPropagateComposesParentChain(t *testing.T) {
	s := New()
	root := s.AddRoot("root", particle.Translate(r3.Vec{X: 10}))
	mid := s.AddChild(root, "mid", particle.Transform{
		Scale:       r3.Vec{X: 2, Y: 2, Z: 2},
		Orientation: particle.AxisAngle(r3.Vec{Z: 1}, math.Pi/2),
	})
	leaf := s.AddChild(mid, "leaf", particle.Translate(r3.Vec{X: 1}))
	s.Propagate()

	got := s.Absolute(leaf).Translation
	if !near(got, r3.Vec{X: 10, Y: 2}) {
		t.Errorf("expected leaf at (10,2,0), got %v", got)
	}
	if s.Root(leaf) != root {
		t.Error("expected root as top ancestor of leaf")
	}
	if !s.InSubtree(leaf, mid) || s.InSubtree(mid, leaf) {
		t.Error("unexpected subtree membership")
	}
}

func TestOrbitAnimation(t *testing.T) {
	s := New()
	n := s.AddRoot("orbiter", particle.Identity())
	s.SetOrbit(n, components.Orbit{Radius: 2, Speed: math.Pi / 2})

	s.Update(1)
	got := s.Absolute(n).Translation
	// a quarter turn about +Y carries +X to -Z
	if !near(got, r3.Vec{Z: -2}) {
		t.Errorf("expected (0,0,-2), got %v", got)
	}
}

func TestSimulateFeedsSubtreeOnly(t *testing.T) {
	m := particle.NewModel("spark")
	m.SetCapacity(100)
	m.SetLifetime(10, 10)

	s := New()
	root := s.AddRoot("root", particle.Identity())
	owner := s.AddChild(root, "fx", particle.Translate(r3.Vec{X: 3}))
	inside := s.AddChild(owner, "nozzle", particle.Translate(r3.Vec{Y: 1}))
	outside := s.AddChild(root, "elsewhere", particle.Identity())

	s.AttachEmitter(inside, &pointEmitter{model: m, flow: 10})
	s.AttachEmitter(outside, &pointEmitter{model: m, flow: 50})
	if f := s.FlowInto(owner, m); f != 10 {
		t.Errorf("expected subtree flow 10, got %v", f)
	}

	g := particle.NewGroup(m, particle.GroupOptions{})
	s.AttachSystem(owner, g, false)
	s.Update(1)

	if g.Count() != 10 {
		t.Errorf("expected 10 particles from the subtree emitter, got %d", g.Count())
	}
	for p := range g.Particles() {
		if !near(p.Position, r3.Vec{Y: 1}) {
			t.Errorf("expected local position (0,1,0), got %v", p.Position)
		}
	}
	systems := s.Systems()
	if len(systems) != 1 || systems[0].Name != "fx" {
		t.Fatalf("expected one system named fx, got %+v", systems)
	}
	if !near(systems[0].Space.Apply(r3.Vec{Y: 1}), r3.Vec{X: 3, Y: 1}) {
		t.Error("expected system space to map particles to world")
	}
}

func TestGlobalSystemUsesRootSpace(t *testing.T) {
	m := particle.NewModel("smoke")
	m.SetCapacity(10)
	m.SetLifetime(10, 10)

	s := New()
	root := s.AddRoot("root", particle.Translate(r3.Vec{Z: 1}))
	owner := s.AddChild(root, "fx", particle.Translate(r3.Vec{X: 4}))
	s.AttachEmitter(owner, &pointEmitter{model: m, flow: 1})

	aff := &clockAffector{}
	s.AttachAffector(owner, aff, true)

	g := particle.NewGroup(m, particle.GroupOptions{})
	s.AttachSystem(owner, g, true)
	s.Update(1)
	s.Update(1)

	for p := range g.Particles() {
		if p.Position.X < 4-1e-9 {
			t.Errorf("expected particle in root space near x=4, got %v", p.Position)
		}
	}
	if aff.elapsed != 2 {
		t.Errorf("expected affector clock at 2, got %v", aff.elapsed)
	}
	if aff.applied == 0 {
		t.Error("expected global affector applied")
	}
	if !near(aff.begun.Translation, r3.Vec{}) {
		t.Errorf("expected global affector to act in particle space origin, got %v", aff.begun.Translation)
	}
}

func TestRemoveSubtree(t *testing.T) {
	s := New()
	root := s.AddRoot("root", particle.Identity())
	a := s.AddChild(root, "a", particle.Identity())
	s.AddChild(a, "a1", particle.Identity())
	s.AddChild(root, "b", particle.Identity())

	s.Remove(a)
	if s.Len() != 2 {
		t.Errorf("expected 2 nodes left, got %d", s.Len())
	}
	if _, ok := s.Find("a1"); ok {
		t.Error("expected a1 removed with its parent")
	}
	if _, ok := s.Find("b"); !ok {
		t.Error("expected sibling b kept")
	}
}

func TestAffectorsApplyInAttachOrder(t *testing.T) {
	m := particle.NewModel("spark")
	m.SetCapacity(4)
	m.SetLifetime(10, 10)

	s := New()
	root := s.AddRoot("root", particle.Identity())
	a := s.AddChild(root, "a", particle.Identity())
	b := s.AddChild(root, "b", particle.Identity())
	c := s.AddChild(root, "c", particle.Identity())

	var log []string
	s.AttachAffector(a, &namedAffector{name: "first", log: &log}, false)
	s.AttachAffector(b, &namedAffector{name: "second", log: &log}, false)
	s.AttachAffector(c, &namedAffector{name: "third", log: &log}, true)

	// Moving a node to another archetype must not reorder its affector.
	s.SetOrbit(a, components.Orbit{Radius: 1, Speed: 1})

	g := particle.NewGroup(m, particle.GroupOptions{})
	s.AttachSystem(root, g, false)
	g.AddParticles(1, r3.Vec{}, r3.Vec{})
	s.Update(0.1)
	log = log[:0]
	s.Update(0.1)

	want := []string{"third", "first", "second"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("expected apply order %v, got %v", want, log)
			break
		}
	}
}

func TestStepObserverSeesEveryGroup(t *testing.T) {
	m := particle.NewModel("spark")
	m.SetCapacity(8)
	m.SetLifetime(10, 10)
	m.SetAllowMultipleGroups(true)

	s := New()
	a := s.AddRoot("a", particle.Identity())
	b := s.AddRoot("b", particle.Identity())
	ga := particle.NewGroup(m, particle.GroupOptions{})
	gb := particle.NewGroup(m, particle.GroupOptions{})
	s.AttachSystem(a, ga, false)
	s.AttachSystem(b, gb, false)
	ga.AddParticles(3, r3.Vec{}, r3.Vec{})

	stepped := map[string][]int{}
	s.SetStepObserver(func(sys System, n int, d time.Duration) {
		if d < 0 {
			t.Errorf("negative step time for %s", sys.Name)
		}
		stepped[sys.Name] = append(stepped[sys.Name], n)
	})
	s.Update(0.1)
	s.Update(0.1)

	if got := stepped["a"]; len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("expected a to step [0 3], got %v", got)
	}
	if got := stepped["b"]; len(got) != 2 || got[1] != 0 {
		t.Errorf("expected b to step nothing twice, got %v", got)
	}
}
