package particle

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Arena is the packed attribute buffer backing a group: one stride-sized
// block per pool slot. Particles address it by slot index, so the buffer can
// be replaced by tooling without invalidating live particles.
type Arena struct {
	buf    []byte
	stride int
}

func newArena(capacity, stride int) *Arena {
	return &Arena{buf: make([]byte, capacity*stride), stride: stride}
}

// Stride returns the per-particle block size in bytes.
func (a *Arena) Stride() int { return a.stride }

// Bytes returns the whole backing buffer.
func (a *Arena) Bytes() []byte { return a.buf }

// Relocate swaps in a new backing buffer of identical length.
// It reports false and leaves the arena unchanged if the length differs.
func (a *Arena) Relocate(buf []byte) bool {
	if len(buf) != len(a.buf) {
		return false
	}
	copy(buf, a.buf)
	a.buf = buf
	return true
}

func (a *Arena) block(slot int) []byte {
	start := slot * a.stride
	return a.buf[start : start+a.stride : start+a.stride]
}

// Extra is a particle's view of its packed attribute block.
type Extra struct {
	arena *Arena
	slot  int
}

// Bytes returns the particle's block. It is empty when the model stores nothing.
func (e Extra) Bytes() []byte {
	if e.arena == nil || e.arena.stride == 0 {
		return nil
	}
	return e.arena.block(e.slot)
}

// Float32 reads a little-endian float32 at the given byte offset.
func (e Extra) Float32(off int) float32 {
	b := e.Bytes()
	assertf(off >= 0 && off+4 <= len(b), "extra read at %d outside %d-byte block", off, len(b))
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

// SetFloat32 writes a little-endian float32 at the given byte offset.
func (e Extra) SetFloat32(off int, v float32) {
	b := e.Bytes()
	assertf(off >= 0 && off+4 <= len(b), "extra write at %d outside %d-byte block", off, len(b))
	if off < 0 || off+4 > len(b) {
		return
	}
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
}

func (e Extra) clear() {
	b := e.Bytes()
	for i := range b {
		b[i] = 0
	}
}

// Particle is one live simulation unit held in a group slot.
type Particle struct {
	Position r3.Vec
	Velocity r3.Vec
	Age      float64
	// Life is the remaining lifetime in seconds; +Inf for immortal species.
	Life float64

	extra Extra
}

// lifeEpsilon absorbs rounding left by repeated dt subtraction.
const lifeEpsilon = 1e-9

// Alive reports whether the particle still has life left.
func (p *Particle) Alive() bool { return p.Life > lifeEpsilon }

// Kill ends the particle at the end of the current step.
func (p *Particle) Kill() { p.Life = 0 }

// Slot returns the pool slot the particle occupies.
func (p *Particle) Slot() int { return p.extra.slot }

// Extra returns the particle's packed attribute block accessor.
func (p *Particle) Extra() Extra { return p.extra }

// LifeFraction returns normalized progress since spawn, age/(age+life),
// clamped to [0, 1]. Zero-length and immortal lifetimes report 0.
func (p *Particle) LifeFraction() float64 {
	total := p.Age + p.Life
	if total <= 0 || math.IsInf(total, 1) || math.IsNaN(total) {
		return 0
	}
	f := p.Age / total
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
