package particle

import (
	"iter"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// GroupOptions configures a new group.
type GroupOptions struct {
	// Name labels the group in logs and telemetry.
	Name string
	// ExpectedFlow is the summed flow of the emitters feeding the group,
	// used to size the pool when the model capacity is 0.
	ExpectedFlow float64
	// CapacityQuantile is the lifetime quantile for auto sizing
	// (DefaultCapacityQuantile when 0).
	CapacityQuantile float64
	// MinCapacity floors the auto-sized capacity.
	MinCapacity uint32
	// Seed seeds the group's random source.
	Seed int64
}

// StepStats counts slot transitions.
type StepStats struct {
	Spawned  int // particles initialized
	Recycled int // spawns that reused a slot freed in the same step
	Died     int // particles whose life ended
	Dropped  int // spawns lost to a full pool
}

func (s *StepStats) add(o StepStats) {
	s.Spawned += o.Spawned
	s.Recycled += o.Recycled
	s.Died += o.Died
	s.Dropped += o.Dropped
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("spawned", s.Spawned),
		slog.Int("recycled", s.Recycled),
		slog.Int("died", s.Died),
		slog.Int("dropped", s.Dropped),
	)
}

type spawnRequest struct {
	count    int
	position r3.Vec
	velocity r3.Vec
	emitter  Emitter
}

// emitterState is the per-emitter scheduling state of a group. Transforms
// are relative to the particle space.
type emitterState struct {
	flow    FlowAccumulator
	prev    Transform
	cur     Transform
	hasPrev bool
	pending int
	seen    uint64
}

// Group owns the live particles of one species for one owning node and
// steps them. It is single-threaded: Update must finish before visitors
// read the group, and emitters or affectors must not call back into it.
type Group struct {
	name    string
	model   *Model
	layout  Layout
	version uint64
	stale   bool

	arena *Arena
	pool  *pool
	rng   *rand.Rand

	requests []spawnRequest
	emitters map[Emitter]*emitterState
	order    []Emitter
	dead     []int
	affect   []Affector
	frame    uint64

	last   StepStats
	totals StepStats
}

// NewGroup allocates storage for model. Capacity comes from the model or,
// when that is 0, from AutoCapacity with the options' flow and quantile.
func NewGroup(model *Model, opts GroupOptions) *Group {
	layout := model.Finalize()
	capacity := model.Capacity()
	if capacity == 0 {
		capacity = max(AutoCapacity(model, opts.ExpectedFlow, opts.CapacityQuantile), opts.MinCapacity)
	}
	model.registerGroup()

	name := opts.Name
	if name == "" {
		name = model.Name
	}
	arena := newArena(int(capacity), layout.PackedByteSize)
	return &Group{
		name:     name,
		model:    model,
		layout:   layout,
		version:  model.LayoutVersion(),
		arena:    arena,
		pool:     newPool(int(capacity), arena),
		rng:      rand.New(rand.NewSource(opts.Seed)),
		emitters: make(map[Emitter]*emitterState),
	}
}

// Name returns the group label.
func (g *Group) Name() string { return g.name }

// Model returns the species model.
func (g *Group) Model() *Model { return g.model }

// Layout returns the packed layout captured at creation.
func (g *Group) Layout() Layout { return g.layout }

// Arena returns the packed attribute buffer.
func (g *Group) Arena() *Arena { return g.arena }

// Count returns the number of live particles.
func (g *Group) Count() int { return g.pool.count() }

// Capacity returns the fixed pool size.
func (g *Group) Capacity() int { return g.pool.capacity() }

// Stale reports whether the model layout changed after the group was created.
func (g *Group) Stale() bool { return g.stale }

// LastStep returns the counters of the most recent Update.
func (g *Group) LastStep() StepStats { return g.last }

// Totals returns the counters accumulated over all updates.
func (g *Group) Totals() StepStats { return g.totals }

// AddParticles queues count particles at position with velocity, in particle
// space. Requests are spawned first on the next Update.
func (g *Group) AddParticles(count int, position, velocity r3.Vec) {
	if count <= 0 {
		return
	}
	g.requests = append(g.requests, spawnRequest{count: count, position: position, velocity: velocity})
}

// AddParticlesFrom queues count particles produced by e on the next Update.
// The emitter's last known transform is used, or the particle-space origin.
func (g *Group) AddParticlesFrom(count int, e Emitter) {
	if count <= 0 || e == nil {
		return
	}
	g.requests = append(g.requests, spawnRequest{count: count, emitter: e})
}

// ReadValue returns the current value of attr for a live particle.
func (g *Group) ReadValue(p *Particle, attr Attribute) float64 {
	return g.model.ReadValue(p, attr)
}

// Particle returns the particle in slot and whether it is live.
func (g *Group) Particle(slot int) (*Particle, bool) {
	if !g.pool.active(slot) {
		return nil, false
	}
	return &g.pool.slots[slot], true
}

// Particles iterates the live particles in live-list order.
func (g *Group) Particles() iter.Seq[*Particle] {
	return func(yield func(*Particle) bool) {
		for _, slot := range g.pool.live {
			if !yield(&g.pool.slots[slot]) {
				return
			}
		}
	}
}

// ForEach calls fn for every live particle.
func (g *Group) ForEach(fn func(p *Particle)) {
	for _, slot := range g.pool.live {
		fn(&g.pool.slots[slot])
	}
}

// Visit hands every live particle to v.
func (g *Group) Visit(v Visitor) {
	for _, slot := range g.pool.live {
		v.VisitParticle(g, &g.pool.slots[slot])
	}
}

// Clear frees every slot and drops pending requests and flow remainders.
func (g *Group) Clear() {
	g.pool.reset()
	g.requests = g.requests[:0]
	g.dead = g.dead[:0]
	for _, st := range g.emitters {
		st.flow.Reset()
	}
}

// Update advances the group by dt seconds: ages and moves live particles,
// runs affectors, schedules emitter output, then fills freed and unused
// slots from queued requests followed by emitter output.
func (g *Group) Update(dt float64, sys SystemData) {
	g.last = StepStats{}
	if g.model.LayoutVersion() != g.version {
		if !g.stale {
			g.stale = true
			slog.Error("particle model layout changed under live group, stepping disabled",
				"group", g.name, "model", g.model.Name,
				"group_version", g.version, "model_version", g.model.LayoutVersion())
		}
		return
	}
	if !(dt >= 0) {
		return
	}
	g.frame++

	g.simulate(dt, sys)
	g.schedule(dt, sys)
	g.spawnRequests()
	g.spawnEmitters(dt)

	for _, slot := range g.dead {
		g.pool.release(slot)
	}
	g.dead = g.dead[:0]

	for _, e := range g.order {
		st := g.emitters[e]
		st.prev = st.cur
		st.hasPrev = true
	}
	g.totals.add(g.last)
}

// simulate ages, integrates and affects every live particle, collecting the
// slots of those that died.
func (g *Group) simulate(dt float64, sys SystemData) {
	g.affect = g.affect[:0]
	for _, b := range sys.GlobalAffectors {
		g.beginAffector(b, sys.Space)
	}
	for _, b := range sys.LocalAffectors {
		g.beginAffector(b, sys.Space)
	}

	m := g.model
	immortal := m.Immortal()
	gravity := m.Gravity()
	applyGravity := gravity != (r3.Vec{})

	for _, slot := range g.pool.live {
		p := &g.pool.slots[slot]
		p.Age += dt
		if !immortal {
			p.Life -= dt
		}
		m.UpdateParticle(p, dt)
		p.Position = r3.Add(p.Position, r3.Scale(dt, p.Velocity))
		if applyGravity && p.Alive() {
			p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, gravity))
		}
		for _, a := range g.affect {
			if !p.Alive() {
				break
			}
			a.Apply(p, dt)
		}
		if !p.Alive() {
			g.dead = append(g.dead, slot)
			g.last.Died++
		}
	}
}

func (g *Group) beginAffector(b AffectorBinding, space Transform) {
	a := b.Affector
	if a == nil {
		return
	}
	if am := a.Model(); am != nil && am != g.model {
		return
	}
	a.Begin(RelativeTo(space, b.Transform))
	g.affect = append(g.affect, a)
}

// schedule records the current transform of every emitter feeding this
// species and runs its flow accumulator. States of emitters no longer
// present are dropped.
func (g *Group) schedule(dt float64, sys SystemData) {
	g.order = g.order[:0]
	for _, b := range sys.Emitters {
		e := b.Emitter
		if e == nil || e.Model() != g.model {
			continue
		}
		st, ok := g.emitters[e]
		if !ok {
			st = &emitterState{}
			g.emitters[e] = st
		}
		if st.seen == g.frame {
			continue
		}
		st.seen = g.frame
		st.cur = RelativeTo(sys.Space, b.Transform)
		if !st.hasPrev {
			st.prev = st.cur
		}
		st.pending = st.flow.Step(e.Flow(), dt)
		g.order = append(g.order, e)
	}
	for e, st := range g.emitters {
		if st.seen != g.frame {
			delete(g.emitters, e)
		}
	}
}

// acquire hands out a slot for a new particle: a slot freed this step
// first, then an unused one.
func (g *Group) acquire() (*Particle, bool) {
	if n := len(g.dead); n > 0 {
		slot := g.dead[n-1]
		g.dead = g.dead[:n-1]
		g.last.Recycled++
		return &g.pool.slots[slot], true
	}
	slot, ok := g.pool.acquire()
	if !ok {
		return nil, false
	}
	return &g.pool.slots[slot], true
}

func (g *Group) spawnRequests() {
	for i, req := range g.requests {
		for k := 0; k < req.count; k++ {
			p, ok := g.acquire()
			if !ok {
				g.last.Dropped += req.count - k
				break
			}
			g.last.Spawned++
			p.Position = r3.Vec{}
			p.Velocity = r3.Vec{}
			g.model.InitParticle(p, g.rng)
			if req.emitter == nil {
				p.Position = req.position
				p.Velocity = req.velocity
			} else {
				t := Identity()
				if st, ok := g.emitters[req.emitter]; ok {
					t = st.cur
				}
				req.emitter.Begin(t)
				req.emitter.Emit(p, g.rng)
			}
			g.retireStillborn(p)
		}
		g.requests[i] = spawnRequest{}
	}
	g.requests = g.requests[:0]
}

// spawnEmitters emits each emitter's scheduled batch. The k-th of n
// particles uses the transform at progress α = k/n between the previous
// and current step, then is advanced by α·dt along its velocity.
func (g *Group) spawnEmitters(dt float64) {
	for _, e := range g.order {
		st := g.emitters[e]
		total := st.pending
		st.pending = 0
		for k := 0; k < total; k++ {
			p, ok := g.acquire()
			if !ok {
				g.last.Dropped += total - k
				break
			}
			g.last.Spawned++
			remaining := total - k
			alpha := 1 - float64(remaining)/float64(total)

			p.Position = r3.Vec{}
			p.Velocity = r3.Vec{}
			g.model.InitParticle(p, g.rng)
			e.Begin(LerpTransform(st.prev, st.cur, alpha))
			e.Emit(p, g.rng)
			p.Position = r3.Add(p.Position, r3.Scale(alpha*dt, p.Velocity))
			g.retireStillborn(p)
		}
	}
}

// retireStillborn frees a just-spawned particle that has no lifetime, so
// it never shows up in the live list.
func (g *Group) retireStillborn(p *Particle) {
	if p.Alive() {
		return
	}
	g.pool.release(p.Slot())
	g.last.Died++
}
