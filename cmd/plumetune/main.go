// Package main searches pool sizing parameters that keep capacity small
// without dropping more spawns than a configured ceiling.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/telemetry"
)

// evalRecord is one row of tune_log.csv.
type evalRecord struct {
	Eval        int     `csv:"eval"`
	Fitness     float64 `csv:"fitness"`
	Quantile    float64 `csv:"quantile"`
	MinCapacity float64 `csv:"min_capacity"`
	Capacity    int     `csv:"capacity"`
	DropRate    float64 `csv:"drop_rate"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int("max-ticks", 1200, "Simulation ticks per run")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 60, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	dropCeiling := flag.Float64("drop-ceiling", 0.01, "Highest acceptable fraction of dropped spawns")
	outputDir := flag.String("output", "", "Output directory for results")
	verbose := flag.Bool("verbose", false, "Log scene construction for every run")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *outputDir == "" {
		fatal("missing flag", fmt.Errorf("--output is required"))
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fatal("failed to create output directory", err)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}

	knobs := PoolKnobs()

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(knobs, *configPath, int32(*maxTicks), evalSeeds, *dropCeiling)

	dim := len(knobs)
	initX := knobs.Start(baseCfg)

	logFile, err := os.Create(filepath.Join(*outputDir, "tune_log.csv"))
	if err != nil {
		fatal("failed to create log file", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1e18
	var bestX []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			fitness := evaluator.Evaluate(x)
			evalCount++

			values := knobs.Values(x)
			if fitness < bestFitness {
				bestFitness = fitness
				bestX = slices.Clone(x)
			}

			capacity, dropRate := evaluator.Last()
			rec := []evalRecord{{
				Eval:        evalCount,
				Fitness:     fitness,
				Quantile:    values[0],
				MinCapacity: values[1],
				Capacity:    capacity,
				DropRate:    dropRate,
			}}
			write := gocsv.MarshalWithoutHeaders
			if evalCount == 1 {
				write = gocsv.Marshal
			}
			if err := write(rec, logFile); err != nil {
				slog.Error("failed to write log row", "error", err)
			}

			elapsed := time.Since(startTime)
			remaining := time.Duration(*maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			fmt.Printf("Eval %d/%d: capacity=%d drop=%.4f (best=%.0f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, capacity, dropRate, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0,
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 1,
		Population:   popSize,
	}

	fmt.Printf("Starting CMA-ES search with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, ticks per run: %d, drop ceiling: %.3f\n",
		*seeds, *maxTicks, *dropCeiling)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("search ended", "error", err)
	}
	switch {
	case bestX != nil:
	case result != nil:
		bestX = result.X
	default:
		bestX = initX
	}
	best := knobs.Values(bestX)

	fmt.Printf("\nSearch complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.0f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, k := range knobs {
		fmt.Printf("  %s (%s): %.6f\n", k.Name, k.Path, best[i])
	}

	knobs.Apply(baseCfg, bestX)
	configOut := filepath.Join(*outputDir, "best_config.yaml")
	if err := baseCfg.WriteYAML(configOut); err != nil {
		slog.Error("failed to write best config", "error", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOut)
	}

	if windows := evaluator.BestWindows(); len(windows) > 0 {
		om, err := telemetry.NewOutputManager(filepath.Join(*outputDir, "best_run"))
		if err != nil {
			slog.Error("failed to create best run output", "error", err)
			return
		}
		defer om.Close()
		for _, w := range windows {
			if err := om.WriteTelemetry(w); err != nil {
				slog.Error("failed to write best run telemetry", "error", err)
				return
			}
		}
	}
}
