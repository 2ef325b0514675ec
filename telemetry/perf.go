package telemetry

import (
	"log/slog"
	"slices"
	"time"
)

// Phase is one part of a simulation tick.
type Phase int

// Step phases in execution order.
const (
	PhaseTransforms Phase = iota
	PhaseSimulate
	PhaseRenderExtract
	PhaseTelemetry
	NumPhases
)

var phaseNames = [NumPhases]string{"transforms", "simulate", "render_extract", "telemetry"}

func (p Phase) String() string {
	if p < 0 || p >= NumPhases {
		return "unknown"
	}
	return phaseNames[p]
}

type groupSample struct {
	step    time.Duration
	stepped int
}

// perfSample is the timing of one tick.
type perfSample struct {
	tick    time.Duration
	phases  [NumPhases]time.Duration
	stepped int
	groups  []groupSample
}

// PerfCollector times simulation ticks over a rolling window: the phases
// of each tick, and how long every particle group took to step and how
// many particles it stepped.
type PerfCollector struct {
	groups []string
	ring   []perfSample
	next   int
	filled int

	cur        perfSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool

	lastFrame time.Time
	frame     time.Duration

	now func() time.Time
}

// NewPerfCollector creates a collector averaging over window ticks. groups
// names the particle groups whose steps are reported by index through
// RecordGroupStep.
func NewPerfCollector(window int, groups ...string) *PerfCollector {
	if window < 1 {
		window = 60
	}
	p := &PerfCollector{
		groups: slices.Clone(groups),
		ring:   make([]perfSample, window),
		now:    time.Now,
	}
	p.cur.groups = make([]groupSample, len(groups))
	return p
}

// Groups returns the group names in index order.
func (p *PerfCollector) Groups() []string { return p.groups }

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = p.now()
	p.cur.phases = [NumPhases]time.Duration{}
	p.cur.stepped = 0
	clear(p.cur.groups)
	p.inPhase = false
}

// StartPhase ends the running phase, if any, and starts ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := p.now()
	p.endPhase(now)
	if ph < 0 || ph >= NumPhases {
		return
	}
	p.phase, p.phaseStart, p.inPhase = ph, now, true
}

func (p *PerfCollector) endPhase(now time.Time) {
	if p.inPhase {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
		p.inPhase = false
	}
}

// RecordGroupStep reports that group i stepped stepped live particles in d.
// Unknown indices only count toward the tick's particle total.
func (p *PerfCollector) RecordGroupStep(i, stepped int, d time.Duration) {
	p.cur.stepped += stepped
	if i < 0 || i >= len(p.cur.groups) {
		return
	}
	p.cur.groups[i].step += d
	p.cur.groups[i].stepped += stepped
}

// EndTick closes the tick and stores it in the window.
func (p *PerfCollector) EndTick() {
	now := p.now()
	p.endPhase(now)

	slot := &p.ring[p.next]
	slot.tick = now.Sub(p.tickStart)
	slot.phases = p.cur.phases
	slot.stepped = p.cur.stepped
	slot.groups = append(slot.groups[:0], p.cur.groups...)

	p.next = (p.next + 1) % len(p.ring)
	if p.filled < len(p.ring) {
		p.filled++
	}
}

// RecordFrame marks a rendered frame for FPS tracking.
func (p *PerfCollector) RecordFrame() {
	now := p.now()
	if !p.lastFrame.IsZero() {
		p.frame = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// GroupPerf is the step cost of one particle group over the window.
type GroupPerf struct {
	Name          string
	AvgStep       time.Duration
	AvgParticles  float64
	NsPerParticle float64
	SimulatePct   float64 // share of the simulate phase
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	Samples int

	AvgTickDuration time.Duration
	P50TickDuration time.Duration
	P90TickDuration time.Duration
	MaxTickDuration time.Duration

	PhaseAvg [NumPhases]time.Duration
	PhasePct [NumPhases]float64 // of the average tick

	TicksPerSecond float64
	// ParticlesPerTick is the average number of live particles stepped.
	ParticlesPerTick float64
	// ParticlesPerSecond is stepping throughput over simulate phase time.
	ParticlesPerSecond float64

	Groups []GroupPerf

	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{Samples: p.filled, FrameDuration: p.frame}
	if p.frame > 0 {
		s.FPS = float64(time.Second) / float64(p.frame)
	}
	if p.filled == 0 {
		return s
	}

	n := p.filled
	ticks := make([]float64, n)
	var total time.Duration
	var phaseSum [NumPhases]time.Duration
	var stepped int
	groupStep := make([]time.Duration, len(p.groups))
	groupStepped := make([]int, len(p.groups))
	for i := range n {
		smp := &p.ring[i]
		ticks[i] = float64(smp.tick)
		total += smp.tick
		for ph, d := range smp.phases {
			phaseSum[ph] += d
		}
		stepped += smp.stepped
		for g, gs := range smp.groups {
			groupStep[g] += gs.step
			groupStepped[g] += gs.stepped
		}
	}
	slices.Sort(ticks)

	s.AvgTickDuration = total / time.Duration(n)
	s.P50TickDuration = time.Duration(Percentile(ticks, 0.5))
	s.P90TickDuration = time.Duration(Percentile(ticks, 0.9))
	s.MaxTickDuration = time.Duration(ticks[n-1])
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / time.Duration(n)
		if s.AvgTickDuration > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTickDuration) * 100
		}
	}
	if s.AvgTickDuration > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTickDuration)
	}
	s.ParticlesPerTick = float64(stepped) / float64(n)
	simulate := phaseSum[PhaseSimulate]
	if simulate > 0 {
		s.ParticlesPerSecond = float64(stepped) / simulate.Seconds()
	}

	s.Groups = make([]GroupPerf, len(p.groups))
	for g, name := range p.groups {
		gp := GroupPerf{
			Name:         name,
			AvgStep:      groupStep[g] / time.Duration(n),
			AvgParticles: float64(groupStepped[g]) / float64(n),
		}
		if groupStepped[g] > 0 {
			gp.NsPerParticle = float64(groupStep[g]) / float64(groupStepped[g])
		}
		if simulate > 0 {
			gp.SimulatePct = float64(groupStep[g]) / float64(simulate) * 100
		}
		s.Groups[g] = gp
	}
	return s
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"p90_tick_us", s.P90TickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
		"particles_per_tick", int(s.ParticlesPerTick),
		"particles_per_sec", int(s.ParticlesPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", int(pct*10)/10.0)
		}
	}
	for _, g := range s.Groups {
		attrs = append(attrs, slog.Group(g.Name,
			"step_us", g.AvgStep.Microseconds(),
			"particles", int(g.AvgParticles),
			"ns_per_particle", int(g.NsPerParticle),
		))
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p50_tick_us", s.P50TickDuration.Microseconds()),
		slog.Int64("p90_tick_us", s.P90TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("particles_per_sec", s.ParticlesPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for ph, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd        int32   `csv:"window_end"`
	AvgTickUS        int64   `csv:"avg_tick_us"`
	P50TickUS        int64   `csv:"p50_tick_us"`
	P90TickUS        int64   `csv:"p90_tick_us"`
	MaxTickUS        int64   `csv:"max_tick_us"`
	TicksPerSec      float64 `csv:"ticks_per_sec"`
	FPS              float64 `csv:"fps"`
	TransformsPct    float64 `csv:"transforms_pct"`
	SimulatePct      float64 `csv:"simulate_pct"`
	RenderExtractPct float64 `csv:"render_extract_pct"`
	TelemetryPct     float64 `csv:"telemetry_pct"`
	ParticlesPerTick float64 `csv:"particles_per_tick"`
	ParticlesPerSec  float64 `csv:"particles_per_sec"`
}

// ToCSV flattens the stats for perf.csv.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:        windowEnd,
		AvgTickUS:        s.AvgTickDuration.Microseconds(),
		P50TickUS:        s.P50TickDuration.Microseconds(),
		P90TickUS:        s.P90TickDuration.Microseconds(),
		MaxTickUS:        s.MaxTickDuration.Microseconds(),
		TicksPerSec:      s.TicksPerSecond,
		FPS:              s.FPS,
		TransformsPct:    s.PhasePct[PhaseTransforms],
		SimulatePct:      s.PhasePct[PhaseSimulate],
		RenderExtractPct: s.PhasePct[PhaseRenderExtract],
		TelemetryPct:     s.PhasePct[PhaseTelemetry],
		ParticlesPerTick: s.ParticlesPerTick,
		ParticlesPerSec:  s.ParticlesPerSecond,
	}
}

// GroupPerfCSV is one row of perf_groups.csv.
type GroupPerfCSV struct {
	WindowEnd     int32   `csv:"window_end"`
	Group         string  `csv:"group"`
	AvgStepUS     float64 `csv:"avg_step_us"`
	AvgParticles  float64 `csv:"avg_particles"`
	NsPerParticle float64 `csv:"ns_per_particle"`
	SimulatePct   float64 `csv:"simulate_pct"`
}

// GroupRows flattens the per-group stats for perf_groups.csv.
func (s PerfStats) GroupRows(windowEnd int32) []GroupPerfCSV {
	rows := make([]GroupPerfCSV, len(s.Groups))
	for i, g := range s.Groups {
		rows[i] = GroupPerfCSV{
			WindowEnd:     windowEnd,
			Group:         g.Name,
			AvgStepUS:     float64(g.AvgStep) / float64(time.Microsecond),
			AvgParticles:  g.AvgParticles,
			NsPerParticle: g.NsPerParticle,
			SimulatePct:   g.SimulatePct,
		}
	}
	return rows
}
