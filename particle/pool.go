package particle

// pool is the fixed-capacity slot store of a group. Inactive slots sit on a
// free stack with the lowest index on top; active slots form a dense live
// list so iteration touches only live particles.
type pool struct {
	slots   []Particle
	free    []int
	live    []int
	livePos []int // slot -> index in live, -1 when inactive
}

func newPool(capacity int, arena *Arena) *pool {
	p := &pool{
		slots:   make([]Particle, capacity),
		free:    make([]int, capacity),
		live:    make([]int, 0, capacity),
		livePos: make([]int, capacity),
	}
	for i := range p.slots {
		p.slots[i].extra = Extra{arena: arena, slot: i}
		p.free[i] = capacity - 1 - i
		p.livePos[i] = -1
	}
	return p
}

func (p *pool) capacity() int { return len(p.slots) }

func (p *pool) count() int { return len(p.live) }

func (p *pool) active(slot int) bool {
	return slot >= 0 && slot < len(p.livePos) && p.livePos[slot] >= 0
}

// acquire pops a free slot and marks it live.
func (p *pool) acquire() (int, bool) {
	n := len(p.free)
	if n == 0 {
		return 0, false
	}
	slot := p.free[n-1]
	p.free = p.free[:n-1]
	p.livePos[slot] = len(p.live)
	p.live = append(p.live, slot)
	return slot, true
}

// release swap-removes slot from the live list and pushes it on the free
// stack, so it is the next slot handed out.
func (p *pool) release(slot int) {
	assertf(p.active(slot), "release of inactive slot %d", slot)
	if !p.active(slot) {
		return
	}
	i := p.livePos[slot]
	last := len(p.live) - 1
	moved := p.live[last]
	p.live[i] = moved
	p.livePos[moved] = i
	p.live = p.live[:last]
	p.livePos[slot] = -1
	p.free = append(p.free, slot)
}

// reset returns every slot to the free stack.
func (p *pool) reset() {
	n := len(p.slots)
	p.live = p.live[:0]
	p.free = p.free[:n]
	for i := range p.slots {
		p.free[i] = n - 1 - i
		p.livePos[i] = -1
	}
}
