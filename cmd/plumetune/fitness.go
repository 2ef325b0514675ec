package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/sim"
	"github.com/pthm-cable/plume/telemetry"
)

// FitnessEvaluator runs headless simulations and scores pool sizing.
type FitnessEvaluator struct {
	knobs       Knobs
	configPath  string
	maxTicks    int32
	seeds       []int64
	dropCeiling float64
	statsWindow float64

	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	last        runResult
}

// NewFitnessEvaluator creates a new evaluator. Every run reloads configPath
// so evaluations never share mutable config state.
func NewFitnessEvaluator(knobs Knobs, configPath string, maxTicks int32, seeds []int64, dropCeiling float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		knobs:       knobs,
		configPath:  configPath,
		maxTicks:    maxTicks,
		seeds:       seeds,
		dropCeiling: dropCeiling,
		statsWindow: 1.0,
		bestFitness: math.Inf(1),
	}
}

// BestWindows returns the window stats of the best seed of the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// Last returns the averaged result of the most recent evaluation.
func (fe *FitnessEvaluator) Last() (capacity int, dropRate float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last.capacity, fe.last.dropRate()
}

// runResult holds the results from a single simulation run.
type runResult struct {
	capacity    int // summed over every system
	spawned     int
	dropped     int
	windowStats []telemetry.WindowStats
}

func (r runResult) dropRate() float64 {
	if r.spawned+r.dropped == 0 {
		return 0
	}
	return float64(r.dropped) / float64(r.spawned+r.dropped)
}

// Evaluate computes fitness for search coordinates x (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runResult, len(fe.seeds))
	errs := make([]error, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx], errs[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return math.Inf(1)
		}
	}

	var total float64
	var agg runResult
	best := math.Inf(1)
	var bestWindows []telemetry.WindowStats
	for _, r := range results {
		f := computeFitness(r, fe.dropCeiling)
		total += f
		agg.capacity += r.capacity
		agg.spawned += r.spawned
		agg.dropped += r.dropped
		if f < best {
			best = f
			bestWindows = r.windowStats
		}
	}
	n := len(fe.seeds)
	avg := total / float64(n)
	agg.capacity /= n

	fe.mu.Lock()
	if avg < fe.bestFitness {
		fe.bestFitness = avg
		fe.bestWindows = bestWindows
	}
	fe.last = agg
	fe.mu.Unlock()

	return avg
}

// runSimulation executes a single headless simulation run.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) (runResult, error) {
	cfg, err := config.Load(fe.configPath)
	if err != nil {
		return runResult{}, fmt.Errorf("loading config: %w", err)
	}
	fe.knobs.Apply(cfg, x)

	var result runResult
	s, err := sim.New(cfg, sim.Options{
		Seed:           seed,
		StatsWindowSec: fe.statsWindow,
		StepsPerUpdate: 1,
	})
	if err != nil {
		return runResult{}, fmt.Errorf("building simulation: %w", err)
	}
	defer s.Close()
	s.SetStatsCallback(func(stats telemetry.WindowStats) {
		result.windowStats = append(result.windowStats, stats)
	})

	for s.Tick() < fe.maxTicks {
		s.Update()
	}

	for _, sys := range s.Systems() {
		totals := sys.Group.Totals()
		result.capacity += sys.Group.Capacity()
		result.spawned += totals.Spawned
		result.dropped += totals.Dropped
	}
	return result, nil
}

// Fitness weights.
const (
	dropPenalty = 1e6 // per unit of drop rate above the ceiling
)

// computeFitness scores a run: total pool capacity, plus a steep penalty
// once the drop rate exceeds ceiling.
func computeFitness(r runResult, ceiling float64) float64 {
	f := float64(r.capacity)
	if excess := r.dropRate() - ceiling; excess > 0 {
		f += dropPenalty * excess
	}
	return f
}
