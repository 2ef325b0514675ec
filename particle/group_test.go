package particle

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

type testEmitter struct {
	model *Model
	flow  float64
	vel   r3.Vec
	t     Transform
	begun []Transform
}

func (e *testEmitter) Model() *Model { return e.model }
func (e *testEmitter) Flow() float64 { return e.flow }
func (e *testEmitter) Begin(t Transform) {
	e.t = t
	e.begun = append(e.begun, t)
}
func (e *testEmitter) Emit(p *Particle, _ *rand.Rand) {
	p.Position = e.t.Apply(r3.Vec{})
	p.Velocity = e.t.ApplyVector(e.vel)
}

type killAffector struct {
	model *Model
	calls int
}

func (a *killAffector) Model() *Model { return a.model }
func (a *killAffector) Begin(Transform) {}
func (a *killAffector) Apply(p *Particle, _ float64) {
	a.calls++
	p.Kill()
}

type countAffector struct {
	model *Model
	calls int
}

func (a *countAffector) Model() *Model { return a.model }
func (a *countAffector) Begin(Transform) {}
func (a *countAffector) Apply(p *Particle, _ float64) { a.calls++ }

func emitterSystem(bindings ...EmitterBinding) SystemData {
	sys := NewSystemData()
	sys.Emitters = bindings
	return sys
}

func newModel(capacity uint32, life float64) *Model {
	m := NewModel("test")
	m.SetCapacity(capacity)
	m.SetLifetime(life, life)
	m.SetAllowMultipleGroups(true)
	return m
}

func TestGroupFillsPoolThenRecycles(t *testing.T) {
	m := newModel(10, 1)
	g := NewGroup(m, GroupOptions{Seed: 1})
	e := &testEmitter{model: m, flow: 10}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()})

	for i := 0; i < 10; i++ {
		g.Update(0.1, sys)
	}
	if g.Count() != 10 {
		t.Fatalf("expected 10 particles after 1s, got %d", g.Count())
	}
	if g.Totals().Died != 0 {
		t.Errorf("expected no deaths yet, got %d", g.Totals().Died)
	}

	g.Update(0.1, sys)
	last := g.LastStep()
	if g.Count() > g.Capacity() {
		t.Fatalf("count %d exceeds capacity %d", g.Count(), g.Capacity())
	}
	if last.Died != 1 {
		t.Errorf("expected the first particle to die, got %d deaths", last.Died)
	}
	if last.Recycled != 1 {
		t.Errorf("expected its slot to be recycled, got %d", last.Recycled)
	}
	if g.Count() != 10 {
		t.Errorf("expected 10 live particles, got %d", g.Count())
	}
}

func TestGroupFlowAcrossUnevenSteps(t *testing.T) {
	m := newModel(100, 10)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 5}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()})

	for i := 0; i < 3; i++ {
		g.Update(1.0/3.0, sys)
	}
	if got := g.Totals().Spawned; got != 5 {
		t.Errorf("expected 5 spawned, got %d", got)
	}
}

func TestGroupFlowConvergesForAnyStep(t *testing.T) {
	const flow, duration = 7.0, 10.0
	steps := map[string]func(i int) float64{
		"1/30":      func(int) float64 { return 1.0 / 30 },
		"1/60":      func(int) float64 { return 1.0 / 60 },
		"irregular": func(i int) float64 { return []float64{0.01, 0.033, 0.021, 0.047}[i%4] },
	}
	for name, step := range steps {
		m := newModel(10000, 100)
		g := NewGroup(m, GroupOptions{})
		e := &testEmitter{model: m, flow: flow}
		sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()})

		elapsed := 0.0
		for i := 0; elapsed < duration; i++ {
			dt := math.Min(step(i), duration-elapsed)
			g.Update(dt, sys)
			elapsed += dt
		}
		want := int(math.Floor(flow * duration))
		if got := g.Totals().Spawned; got < want-1 || got > want+1 {
			t.Errorf("%s: expected %d±1 spawned, got %d", name, want, got)
		}
	}
}

func TestGroupKillAffectorReplacesEveryParticle(t *testing.T) {
	m := newModel(50, 5)
	g := NewGroup(m, GroupOptions{Seed: 3})
	g.AddParticles(20, r3.Vec{X: 1}, r3.Vec{Y: 1})
	g.Update(0.1, NewSystemData())
	if g.Count() != 20 {
		t.Fatalf("expected 20 particles, got %d", g.Count())
	}

	kill := &killAffector{}
	e := &testEmitter{model: m, flow: 30}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()})
	sys.GlobalAffectors = []AffectorBinding{{Affector: kill, Transform: Identity()}}
	g.Update(0.1, sys)

	last := g.LastStep()
	if last.Died != 20 {
		t.Errorf("expected 20 deaths, got %d", last.Died)
	}
	if last.Recycled != 3 || g.Count() != 3 {
		t.Errorf("expected 3 recycled and live, got %d recycled and %d live", last.Recycled, g.Count())
	}
	for p := range g.Particles() {
		if p.Age != 0 {
			t.Errorf("expected only fresh particles, found age %v", p.Age)
		}
	}
}

func TestGroupAffectorStopsAfterKill(t *testing.T) {
	m := newModel(10, 5)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(4, r3.Vec{}, r3.Vec{})
	g.Update(0, NewSystemData())

	kill := &killAffector{}
	after := &countAffector{}
	sys := NewSystemData()
	sys.GlobalAffectors = []AffectorBinding{{Affector: kill, Transform: Identity()}}
	sys.LocalAffectors = []AffectorBinding{{Affector: after, Transform: Identity()}}
	g.Update(0.1, sys)

	if kill.calls != 4 {
		t.Errorf("expected kill applied 4 times, got %d", kill.calls)
	}
	if after.calls != 0 {
		t.Errorf("expected later affector skipped, got %d calls", after.calls)
	}
	if g.Count() != 0 {
		t.Errorf("expected empty group, got %d", g.Count())
	}
}

func TestGroupAffectorFiltersBySpecies(t *testing.T) {
	m := newModel(10, 5)
	other := newModel(10, 5)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(2, r3.Vec{}, r3.Vec{})
	g.Update(0, NewSystemData())

	mine := &countAffector{model: m}
	foreign := &countAffector{model: other}
	all := &countAffector{}
	sys := NewSystemData()
	sys.LocalAffectors = []AffectorBinding{
		{Affector: mine, Transform: Identity()},
		{Affector: foreign, Transform: Identity()},
		{Affector: all, Transform: Identity()},
	}
	g.Update(0.1, sys)

	if mine.calls != 2 || all.calls != 2 {
		t.Errorf("expected 2 calls each, got %d and %d", mine.calls, all.calls)
	}
	if foreign.calls != 0 {
		t.Errorf("expected foreign affector skipped, got %d calls", foreign.calls)
	}
}

func TestGroupDropsWhenFull(t *testing.T) {
	m := newModel(5, 5)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(8, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())

	if g.Count() != 5 {
		t.Errorf("expected 5 particles, got %d", g.Count())
	}
	if d := g.LastStep().Dropped; d != 3 {
		t.Errorf("expected 3 dropped, got %d", d)
	}

	g.Update(0.1, NewSystemData())
	if d := g.LastStep().Dropped; d != 0 {
		t.Errorf("expected dropped spawns not to be deferred, got %d", d)
	}
}

func TestGroupRequestsBeforeEmitters(t *testing.T) {
	m := newModel(3, 5)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 20}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Translate(r3.Vec{X: 9})})

	g.AddParticles(3, r3.Vec{Y: 1}, r3.Vec{})
	g.Update(0.1, sys)

	if d := g.LastStep().Dropped; d != 2 {
		t.Errorf("expected emitter batch of 2 dropped, got %d", d)
	}
	for p := range g.Particles() {
		if p.Position != (r3.Vec{Y: 1}) {
			t.Errorf("expected requested particles only, found %v", p.Position)
		}
	}
}

func TestGroupAddParticlesFromEmitter(t *testing.T) {
	m := newModel(10, 5)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, vel: r3.Vec{Z: 2}}
	g.AddParticlesFrom(2, e)
	g.Update(0.1, NewSystemData())

	if g.Count() != 2 {
		t.Fatalf("expected 2 particles, got %d", g.Count())
	}
	g.ForEach(func(p *Particle) {
		if p.Velocity != (r3.Vec{Z: 2}) {
			t.Errorf("expected emitter velocity, got %v", p.Velocity)
		}
	})
}

func TestGroupSpawnInterpolatesEmitterMotion(t *testing.T) {
	m := newModel(100, 10)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 4}

	g.Update(1, emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()}))
	e.begun = nil
	g.Update(1, emitterSystem(EmitterBinding{Emitter: e, Transform: Translate(r3.Vec{X: 10})}))

	want := []float64{0, 2.5, 5, 7.5}
	if len(e.begun) != len(want) {
		t.Fatalf("expected %d emissions, got %d", len(want), len(e.begun))
	}
	for i, w := range want {
		if got := e.begun[i].Translation.X; math.Abs(got-w) > 1e-9 {
			t.Errorf("emission %d: expected x=%v, got %v", i, w, got)
		}
	}
}

func TestGroupSpawnAdvancesByElapsedFraction(t *testing.T) {
	m := newModel(100, 10)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 2, vel: r3.Vec{X: 1}}
	g.Update(1, emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()}))

	// Slots are handed out lowest first, so slot order is spawn order.
	var got []float64
	for slot := 0; slot < g.Capacity(); slot++ {
		if p, ok := g.Particle(slot); ok {
			got = append(got, p.Position.X)
		}
	}
	want := []float64{0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("expected %d particles, got %d", len(want), len(got))
	}
	for i, w := range want {
		if math.Abs(got[i]-w) > 1e-9 {
			t.Errorf("particle %d: expected x=%v, got %v", i, w, got[i])
		}
	}
}

func TestGroupEmitterInLocalSpace(t *testing.T) {
	m := newModel(10, 10)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 1}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Translate(r3.Vec{X: 5, Y: 1})})
	sys.Owner = Translate(r3.Vec{X: 5})
	sys.Space = sys.Owner
	g.Update(1, sys)

	for p := range g.Particles() {
		if math.Abs(p.Position.X) > 1e-9 || math.Abs(p.Position.Y-1) > 1e-9 {
			t.Errorf("expected particle at (0,1,0) in owner space, got %v", p.Position)
		}
	}
}

func TestGroupGravity(t *testing.T) {
	m := newModel(10, 10)
	m.SetGravity(r3.Vec{Y: -10})
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(1, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())
	g.Update(0.1, NewSystemData())
	g.Update(0.1, NewSystemData())

	for p := range g.Particles() {
		if math.Abs(p.Velocity.Y+2) > 1e-9 {
			t.Errorf("expected vy=-2, got %v", p.Velocity.Y)
		}
		if math.Abs(p.Position.Y+0.1) > 1e-9 {
			t.Errorf("expected y=-0.1, got %v", p.Position.Y)
		}
	}
}

func TestGroupImmortalNeverAges(t *testing.T) {
	m := newModel(4, 1)
	m.SetImmortal(true)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(4, r3.Vec{}, r3.Vec{})
	for i := 0; i < 100; i++ {
		g.Update(0.5, NewSystemData())
	}
	if g.Count() != 4 {
		t.Errorf("expected 4 immortal particles, got %d", g.Count())
	}
}

func TestGroupNoDoubleOccupancy(t *testing.T) {
	m := newModel(32, 0.3)
	m.SetLifetime(0.05, 0.4)
	g := NewGroup(m, GroupOptions{Seed: 9})
	e := &testEmitter{model: m, flow: 120}
	sys := emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()})
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 500; step++ {
		if rng.Intn(4) == 0 {
			g.AddParticles(rng.Intn(10), r3.Vec{}, r3.Vec{})
		}
		g.Update(0.01+rng.Float64()*0.03, sys)

		if g.Count() > g.Capacity() {
			t.Fatalf("step %d: count %d exceeds capacity %d", step, g.Count(), g.Capacity())
		}
		slots := make(map[int]bool, g.Count())
		n := 0
		for p := range g.Particles() {
			if slots[p.Slot()] {
				t.Fatalf("step %d: slot %d live twice", step, p.Slot())
			}
			slots[p.Slot()] = true
			if !p.Alive() {
				t.Fatalf("step %d: dead particle in live set", step)
			}
			n++
		}
		if n != g.Count() {
			t.Fatalf("step %d: iterated %d, count %d", step, n, g.Count())
		}
	}
}

func TestGroupStaleLayoutStopsStepping(t *testing.T) {
	m := newModel(10, 5)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(2, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())

	m.SetParamState(Size, Random)
	g.AddParticles(2, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())

	if !g.Stale() {
		t.Error("expected group to be stale")
	}
	if g.Count() != 2 {
		t.Errorf("expected no stepping after layout change, got %d particles", g.Count())
	}
}

func TestGroupVisitAndClear(t *testing.T) {
	m := newModel(10, 5)
	g := NewGroup(m, GroupOptions{})
	g.AddParticles(6, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())

	visited := 0
	g.Visit(VisitorFunc(func(gr *Group, p *Particle) {
		if gr != g {
			t.Error("expected visitor to receive its group")
		}
		visited++
	}))
	if visited != 6 {
		t.Errorf("expected 6 visits, got %d", visited)
	}

	g.Clear()
	if g.Count() != 0 {
		t.Errorf("expected empty group after Clear, got %d", g.Count())
	}
	g.AddParticles(10, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())
	if g.Count() != 10 {
		t.Errorf("expected full pool after Clear, got %d", g.Count())
	}
}

func TestGroupAutoCapacity(t *testing.T) {
	m := NewModel("auto")
	m.SetLifetime(2, 2)
	g := NewGroup(m, GroupOptions{ExpectedFlow: 15})
	if g.Capacity() != 30 {
		t.Errorf("expected capacity 30, got %d", g.Capacity())
	}

	floored := NewGroup(NewModel("floored"), GroupOptions{ExpectedFlow: 1, MinCapacity: 64})
	if floored.Capacity() != 64 {
		t.Errorf("expected floored capacity 64, got %d", floored.Capacity())
	}
}

func TestGroupPackedStorageIsPerSlot(t *testing.T) {
	m := newModel(8, 5)
	m.SetParamState(Size, Random)
	m.SetValues(Size, 0, 100)
	g := NewGroup(m, GroupOptions{Seed: 5})
	g.AddParticles(8, r3.Vec{}, r3.Vec{})
	g.Update(0.1, NewSystemData())

	before := map[int]float64{}
	for p := range g.Particles() {
		before[p.Slot()] = g.ReadValue(p, Size)
	}

	buf := make([]byte, len(g.Arena().Bytes()))
	if !g.Arena().Relocate(buf) {
		t.Fatal("expected relocation into equal-sized buffer")
	}
	for p := range g.Particles() {
		if got := g.ReadValue(p, Size); got != before[p.Slot()] {
			t.Errorf("slot %d: expected %v after relocation, got %v", p.Slot(), before[p.Slot()], got)
		}
	}
}

func TestGroupZeroLifetimeNeverLive(t *testing.T) {
	m := newModel(4, 0)
	g := NewGroup(m, GroupOptions{})
	e := &testEmitter{model: m, flow: 10}
	g.AddParticles(2, r3.Vec{}, r3.Vec{})
	g.Update(1, emitterSystem(EmitterBinding{Emitter: e, Transform: Identity()}))

	if g.Count() != 0 {
		t.Errorf("expected no live particles, got %d", g.Count())
	}
	g.ForEach(func(p *Particle) {
		t.Errorf("expected no visible particles, saw slot %d with life %v", p.Slot(), p.Life)
	})
	last := g.LastStep()
	if last.Spawned != 12 || last.Died != 12 || last.Dropped != 0 {
		t.Errorf("expected 12 spawned and died without drops, got %+v", last)
	}
}
