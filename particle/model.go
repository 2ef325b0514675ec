package particle

import (
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// Model describes one particle species: per-attribute states and parameters,
// lifetime, gravity and pool capacity, plus the packed layout derived from
// the states.
//
// Authoring calls (Set*) must not run while a Group using the model is inside
// Update. Changing states after a group allocated its buffer invalidates that
// group; groups detect this through LayoutVersion and stop stepping.
type Model struct {
	Name string

	states    [NumAttributes]ParamState
	params    [NumAttributes][4]float64
	valuesSet [NumAttributes]bool
	curves    [NumAttributes]Interpolator

	lifetimeMin float64
	lifetimeMax float64
	immortal    bool
	gravity     r3.Vec
	capacity    uint32

	allowMultipleGroups bool
	groups              int

	layout    Layout
	finalized bool
	version   uint64
}

// NewModel creates a model with every attribute Disabled at its default
// value and a one-second lifetime.
func NewModel(name string) *Model {
	return &Model{
		Name:        name,
		lifetimeMin: 1,
		lifetimeMax: 1,
	}
}

func (m *Model) checkAttr(attr Attribute) bool {
	assertf(attr.Valid(), "attribute index %d out of range", attr)
	return attr.Valid()
}

// SetParamStates assigns the state of every attribute; states[i] applies to
// Attribute(i). Entries past NumAttributes and unknown states are ignored.
func (m *Model) SetParamStates(states []ParamState) {
	for i, s := range states {
		if i >= int(NumAttributes) {
			break
		}
		m.SetParamState(Attribute(i), s)
	}
}

// SetParamState assigns the state of a single attribute.
func (m *Model) SetParamState(attr Attribute, s ParamState) {
	if !m.checkAttr(attr) {
		return
	}
	assertf(int(s) < len(stateNames), "state %d out of range", s)
	if int(s) >= len(stateNames) {
		return
	}
	if m.states[attr] == s {
		return
	}
	m.states[attr] = s
	m.finalized = false
	m.version++
}

// SetValues stores up to four raw parameters for attr, interpreted by its
// state: Fixed/Constant use a; Random uses [a,b]; Changing runs a→b;
// ChangingRandom runs [a,c]→[b,d]; Interpolated scales the curve by a
// per-particle variation of ±a.
func (m *Model) SetValues(attr Attribute, vals ...float64) {
	if !m.checkAttr(attr) {
		return
	}
	assertf(len(vals) <= 4, "%d values for %s, at most 4 allowed", len(vals), attr)
	var p [4]float64
	copy(p[:], vals)
	m.params[attr] = p
	m.valuesSet[attr] = len(vals) > 0
}

// SetInterpolator attaches a curve consulted when attr is Interpolated.
func (m *Model) SetInterpolator(attr Attribute, curve Interpolator) {
	if !m.checkAttr(attr) {
		return
	}
	m.curves[attr] = curve
}

// SetLifetime sets the lifetime range in seconds. Bounds are swapped if
// reversed and clamped at zero.
func (m *Model) SetLifetime(min, max float64) {
	if min > max {
		min, max = max, min
	}
	m.lifetimeMin = math.Max(0, min)
	m.lifetimeMax = math.Max(0, max)
}

// SetImmortal makes particles live until an affector kills them.
func (m *Model) SetImmortal(immortal bool) { m.immortal = immortal }

// SetGravity sets the constant acceleration applied to live particles.
func (m *Model) SetGravity(g r3.Vec) { m.gravity = g }

// SetCapacity sets the pool size of groups using this model; 0 means auto.
func (m *Model) SetCapacity(n uint32) { m.capacity = n }

// SetAllowMultipleGroups permits several groups to allocate storage for this model.
func (m *Model) SetAllowMultipleGroups(allow bool) { m.allowMultipleGroups = allow }

// State returns the state of attr.
func (m *Model) State(attr Attribute) ParamState {
	if !m.checkAttr(attr) {
		return Disabled
	}
	return m.states[attr]
}

// Values returns the raw parameters of attr. Attributes never given values
// report their default as the first parameter.
func (m *Model) Values(attr Attribute) [4]float64 {
	if !m.checkAttr(attr) {
		return [4]float64{}
	}
	if !m.valuesSet[attr] {
		return [4]float64{attributeDefaults[attr]}
	}
	return m.params[attr]
}

// Interpolator returns the curve attached to attr, if any.
func (m *Model) Interpolator(attr Attribute) Interpolator {
	if !m.checkAttr(attr) {
		return nil
	}
	return m.curves[attr]
}

// Lifetime returns the lifetime range in seconds.
func (m *Model) Lifetime() (min, max float64) { return m.lifetimeMin, m.lifetimeMax }

// Immortal reports whether particles of this model never age out.
func (m *Model) Immortal() bool { return m.immortal }

// Gravity returns the constant acceleration.
func (m *Model) Gravity() r3.Vec { return m.gravity }

// Capacity returns the configured pool size (0 = auto).
func (m *Model) Capacity() uint32 { return m.capacity }

// AllowMultipleGroups reports whether several groups may share the model.
func (m *Model) AllowMultipleGroups() bool { return m.allowMultipleGroups }

// LayoutVersion changes whenever a state change alters the layout inputs.
func (m *Model) LayoutVersion() uint64 { return m.version }

// Finalize computes the packed layout if needed and returns it.
func (m *Model) Finalize() Layout {
	l := *m.ensureLayout()
	l.DerivedOffsets = append([]int(nil), l.DerivedOffsets...)
	return l
}

func (m *Model) ensureLayout() *Layout {
	if !m.finalized {
		m.layout = computeLayout(&m.states)
		m.finalized = true
	}
	return &m.layout
}

// PackedByteSize returns the size of each particle's extra block.
func (m *Model) PackedByteSize() int {
	return m.ensureLayout().PackedByteSize
}

// Offset returns the byte offset of attr in the packed block, or NoOffset.
func (m *Model) Offset(attr Attribute) int {
	return m.ensureLayout().Offset(attr)
}

// registerGroup records a storage allocation against the model.
func (m *Model) registerGroup() {
	if m.groups > 0 && !m.allowMultipleGroups {
		assertf(false, "model %q already backs a group", m.Name)
		slog.Warn("particle model shared by several groups without permission", "model", m.Name, "groups", m.groups+1)
	}
	m.groups++
}

func draw(rng *rand.Rand) float64 {
	if rng == nil {
		return 0.5
	}
	return rng.Float64()
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// InitParticle resets age and life and freezes the per-particle random
// values and seeds. Changing values are written as their begin value.
func (m *Model) InitParticle(p *Particle, rng *rand.Rand) {
	l := m.ensureLayout()

	p.Age = 0
	if m.immortal {
		p.Life = math.Inf(1)
	} else {
		p.Life = lerp(m.lifetimeMin, m.lifetimeMax, draw(rng))
	}

	ex := p.extra
	ex.clear()
	for i := range m.states {
		off := l.Offsets[i]
		if off == NoOffset {
			continue
		}
		pr := &m.params[i]
		switch m.states[i] {
		case Random:
			ex.SetFloat32(off, float32(lerp(pr[0], pr[1], draw(rng))))
		case Changing:
			ex.SetFloat32(off, float32(pr[0]))
		case ChangingRandom:
			ex.SetFloat32(off, float32(lerp(pr[0], pr[2], draw(rng))))
			ex.SetFloat32(off+4, float32(lerp(pr[1], pr[3], draw(rng))))
		case Interpolated:
			ex.SetFloat32(off, float32(draw(rng)))
		}
	}
}

// UpdateParticle refreshes cached Changing values, which ReadValue returns
// until the next step, and advances every derived pair by its rate times dt.
func (m *Model) UpdateParticle(p *Particle, dt float64) {
	l := m.ensureLayout()
	ex := p.extra

	if l.ChangingCount > 0 {
		f := p.LifeFraction()
		for i := range m.states {
			if m.states[i] == Changing {
				ex.SetFloat32(l.Offsets[i], float32(lerp(m.params[i][0], m.params[i][1], f)))
			}
		}
	}

	for i, d := range DerivedPairs {
		off := l.DerivedOffsets[i]
		if off == NoOffset {
			continue
		}
		rate := m.baseValue(p, d.Rate, l)
		ex.SetFloat32(off, ex.Float32(off)+float32(rate*dt))
	}
}

// ReadValue returns the current effective value of attr for p.
func (m *Model) ReadValue(p *Particle, attr Attribute) float64 {
	if !m.checkAttr(attr) {
		return 0
	}
	l := m.ensureLayout()
	v := m.baseValue(p, attr, l)
	for i, d := range DerivedPairs {
		if d.Target != attr {
			continue
		}
		if off := l.DerivedOffsets[i]; off != NoOffset {
			v += float64(p.extra.Float32(off))
		}
	}
	return v
}

func (m *Model) baseValue(p *Particle, attr Attribute, l *Layout) float64 {
	pr := &m.params[attr]
	off := l.Offsets[attr]
	ex := p.extra

	switch m.states[attr] {
	case Random:
		return float64(ex.Float32(off))
	case Changing:
		return float64(ex.Float32(off))
	case ChangingRandom:
		return lerp(float64(ex.Float32(off)), float64(ex.Float32(off+4)), p.LifeFraction())
	case Interpolated:
		curve := m.curves[attr]
		if curve == nil {
			return attributeDefaults[attr]
		}
		v := curve.Evaluate(p.LifeFraction())
		if !m.valuesSet[attr] || pr[0] == 0 {
			return v
		}
		seed := float64(ex.Float32(off))
		return v * (1 + pr[0]*(2*seed-1))
	default:
		if !m.valuesSet[attr] {
			return attributeDefaults[attr]
		}
		return pr[0]
	}
}
