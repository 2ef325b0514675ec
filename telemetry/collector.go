package telemetry

import (
	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sample is the state of a group observed at the end of a window.
type Sample struct {
	Live     int
	Capacity int
	Ages     []float64
	Speeds   []float64
}

// SampleGroup reads the live count, capacity and per-particle age and speed
// of g, reusing the slices in buf.
func SampleGroup(g *particle.Group, buf Sample) Sample {
	s := Sample{
		Live:     g.Count(),
		Capacity: g.Capacity(),
		Ages:     buf.Ages[:0],
		Speeds:   buf.Speeds[:0],
	}
	for p := range g.Particles() {
		s.Ages = append(s.Ages, p.Age)
		s.Speeds = append(s.Speeds, r3.Norm(p.Velocity))
	}
	return s
}

// Collector accumulates one group's step counters within time windows and
// produces WindowStats.
type Collector struct {
	group               string
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Counters for current window
	steps    particle.StepStats
	peakLive int
}

// NewCollector creates a new stats collector for the named group.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(group string, windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(1)
	if dt > 0 {
		ticksPerWindow = int32(windowDurationSec / dt)
	}
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		group:               group,
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// Group returns the label of the collected group.
func (c *Collector) Group() string {
	return c.group
}

// RecordStep adds the counters of one group update and the live count after it.
func (c *Collector) RecordStep(s particle.StepStats, live int) {
	c.steps.Spawned += s.Spawned
	c.steps.Recycled += s.Recycled
	c.steps.Died += s.Died
	c.steps.Dropped += s.Dropped
	if live > c.peakLive {
		c.peakLive = live
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats from the accumulated counters and the sample
// taken at currentTick, then resets counters for the next window.
func (c *Collector) Flush(currentTick int32, sample Sample) WindowStats {
	var utilization, dropRate float64
	if sample.Capacity > 0 {
		utilization = float64(sample.Live) / float64(sample.Capacity)
	}
	if attempted := c.steps.Spawned + c.steps.Dropped; attempted > 0 {
		dropRate = float64(c.steps.Dropped) / float64(attempted)
	}
	peak := c.peakLive
	if sample.Live > peak {
		peak = sample.Live
	}

	ageMean, ageP10, ageP50, ageP90 := Summarize(sample.Ages)
	speedMean, speedP10, speedP50, speedP90 := Summarize(sample.Speeds)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,
		Group:           c.group,

		Live:        sample.Live,
		PeakLive:    peak,
		Capacity:    sample.Capacity,
		Utilization: utilization,

		Spawned:  c.steps.Spawned,
		Recycled: c.steps.Recycled,
		Died:     c.steps.Died,
		Dropped:  c.steps.Dropped,
		DropRate: dropRate,

		AgeMean: ageMean,
		AgeP10:  ageP10,
		AgeP50:  ageP50,
		AgeP90:  ageP90,

		SpeedMean: speedMean,
		SpeedP10:  speedP10,
		SpeedP50:  speedP50,
		SpeedP90:  speedP90,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.steps = particle.StepStats{}
	c.peakLive = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
