package telemetry

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCollector(window int, groups ...string) (*PerfCollector, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := NewPerfCollector(window, groups...)
	pc.now = clock.Now
	return pc, clock
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6*math.Max(1, math.Abs(b)) }

func TestPerfCollectorPhaseBreakdown(t *testing.T) {
	pc, clock := newTestCollector(10)
	for i := 0; i < 4; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseTransforms)
		clock.advance(time.Millisecond)
		pc.StartPhase(PhaseSimulate)
		clock.advance(3 * time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.Samples != 4 {
		t.Errorf("expected 4 samples, got %d", stats.Samples)
	}
	if stats.AvgTickDuration != 4*time.Millisecond {
		t.Errorf("expected 4ms average tick, got %v", stats.AvgTickDuration)
	}
	if stats.PhaseAvg[PhaseTransforms] != time.Millisecond {
		t.Errorf("expected 1ms transforms, got %v", stats.PhaseAvg[PhaseTransforms])
	}
	if stats.PhasePct[PhaseSimulate] != 75 {
		t.Errorf("expected simulate at 75%%, got %v", stats.PhasePct[PhaseSimulate])
	}
	if stats.PhaseAvg[PhaseRenderExtract] != 0 {
		t.Errorf("expected no render extract time, got %v", stats.PhaseAvg[PhaseRenderExtract])
	}
	if !approx(stats.TicksPerSecond, 250) {
		t.Errorf("expected 250 ticks/s, got %v", stats.TicksPerSecond)
	}
}

func TestPerfCollectorParticleThroughput(t *testing.T) {
	pc, clock := newTestCollector(10, "sparks", "smoke")
	for i := 0; i < 4; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseSimulate)
		clock.advance(2 * time.Millisecond)
		pc.RecordGroupStep(0, 100, 1500*time.Microsecond)
		pc.RecordGroupStep(1, 50, 500*time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.ParticlesPerTick != 150 {
		t.Errorf("expected 150 particles per tick, got %v", stats.ParticlesPerTick)
	}
	if !approx(stats.ParticlesPerSecond, 75000) {
		t.Errorf("expected 75000 particles/s of simulate time, got %v", stats.ParticlesPerSecond)
	}
	if len(stats.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(stats.Groups))
	}
	sparks, smoke := stats.Groups[0], stats.Groups[1]
	if sparks.Name != "sparks" || smoke.Name != "smoke" {
		t.Errorf("unexpected group order %q, %q", sparks.Name, smoke.Name)
	}
	if sparks.AvgStep != 1500*time.Microsecond || sparks.AvgParticles != 100 {
		t.Errorf("unexpected sparks stats %+v", sparks)
	}
	if !approx(sparks.NsPerParticle, 15000) {
		t.Errorf("expected 15000 ns per spark, got %v", sparks.NsPerParticle)
	}
	if !approx(sparks.SimulatePct, 75) || !approx(smoke.SimulatePct, 25) {
		t.Errorf("expected 75/25 split of simulate, got %v/%v", sparks.SimulatePct, smoke.SimulatePct)
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	pc, clock := newTestCollector(3)
	for ms := 1; ms <= 5; ms++ {
		pc.StartTick()
		clock.advance(time.Duration(ms) * time.Millisecond)
		pc.EndTick()
	}

	// Only the last three ticks (3, 4, 5 ms) remain.
	stats := pc.Stats()
	if stats.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", stats.Samples)
	}
	if stats.AvgTickDuration != 4*time.Millisecond {
		t.Errorf("expected 4ms average, got %v", stats.AvgTickDuration)
	}
	if stats.P50TickDuration != 4*time.Millisecond || stats.P90TickDuration != 5*time.Millisecond {
		t.Errorf("expected p50 4ms and p90 5ms, got %v and %v", stats.P50TickDuration, stats.P90TickDuration)
	}
	if stats.MaxTickDuration != 5*time.Millisecond {
		t.Errorf("expected 5ms max, got %v", stats.MaxTickDuration)
	}
}

func TestPerfCollectorGroupCountsResetEachTick(t *testing.T) {
	pc, clock := newTestCollector(2, "sparks")
	pc.StartTick()
	pc.StartPhase(PhaseSimulate)
	pc.RecordGroupStep(0, 40, time.Millisecond)
	clock.advance(time.Millisecond)
	pc.EndTick()

	pc.StartTick()
	pc.StartPhase(PhaseSimulate)
	clock.advance(time.Millisecond)
	pc.EndTick()

	stats := pc.Stats()
	if stats.ParticlesPerTick != 20 {
		t.Errorf("expected 20 particles per tick, got %v", stats.ParticlesPerTick)
	}
	if stats.Groups[0].AvgParticles != 20 {
		t.Errorf("expected 20 sparks per tick, got %v", stats.Groups[0].AvgParticles)
	}
}

func TestPerfCollectorUnknownGroupIndex(t *testing.T) {
	pc, clock := newTestCollector(4)
	pc.StartTick()
	pc.StartPhase(PhaseSimulate)
	pc.RecordGroupStep(5, 10, time.Millisecond)
	clock.advance(time.Millisecond)
	pc.EndTick()

	stats := pc.Stats()
	if stats.ParticlesPerTick != 10 {
		t.Errorf("expected stray steps in the total, got %v", stats.ParticlesPerTick)
	}
	if len(stats.Groups) != 0 {
		t.Errorf("expected no group stats, got %+v", stats.Groups)
	}
}

func TestPerfCollectorEmptyAndFrames(t *testing.T) {
	pc, clock := newTestCollector(4)
	stats := pc.Stats()
	if stats.Samples != 0 || stats.AvgTickDuration != 0 || stats.FPS != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}

	pc.RecordFrame()
	clock.advance(16 * time.Millisecond)
	pc.RecordFrame()
	if fps := pc.Stats().FPS; !approx(fps, 62.5) {
		t.Errorf("expected 62.5 fps, got %v", fps)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseRenderExtract.String() != "render_extract" {
		t.Errorf("unexpected name %q", PhaseRenderExtract.String())
	}
	if Phase(9).String() != "unknown" {
		t.Errorf("expected unknown for out-of-range phase, got %q", Phase(9).String())
	}
}

func TestPerfStatsRows(t *testing.T) {
	stats := PerfStats{
		AvgTickDuration:    2 * time.Millisecond,
		ParticlesPerSecond: 1e6,
		Groups:             []GroupPerf{{Name: "sparks", AvgStep: 1500 * time.Microsecond, NsPerParticle: 30}},
	}
	stats.PhasePct[PhaseSimulate] = 80

	row := stats.ToCSV(60)
	if row.WindowEnd != 60 || row.AvgTickUS != 2000 || row.SimulatePct != 80 || row.ParticlesPerSec != 1e6 {
		t.Errorf("unexpected perf row %+v", row)
	}
	groups := stats.GroupRows(60)
	if len(groups) != 1 || groups[0].Group != "sparks" || groups[0].AvgStepUS != 1500 {
		t.Errorf("unexpected group rows %+v", groups)
	}
}
