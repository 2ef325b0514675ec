package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for group snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, -1 = time-based)")
	maxTicks := flag.Int("max-ticks", -1, "Stop after N ticks (-1 = use config, 0 = unlimited)")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation ticks per update call")
	flowScale := flag.Float64("flow-scale", 1, "Multiplier on every emitter rate")
	snapshotAtEnd := flag.Bool("snapshot-at-end", false, "Write group snapshots when the run ends")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed < 0 {
		rngSeed = time.Now().UnixNano()
	}
	limit := int(cfg.Simulation.MaxTicks)
	if *maxTicks >= 0 {
		limit = *maxTicks
	}

	s, err := sim.New(cfg, sim.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		SnapshotDir:    *snapshotDir,
		OutputDir:      *outputDir,
		StepsPerUpdate: *stepsPerUpdate,
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()
	s.SetFlowScale(*flowScale)

	slog.Info("starting headless simulation",
		"seed", rngSeed,
		"stats_window", *statsWindow,
		"max_ticks", limit,
		"steps_per_update", *stepsPerUpdate,
		"flow_scale", *flowScale,
	)

	start := time.Now()
	for limit == 0 || int(s.Tick()) < limit {
		s.Update()
	}

	for _, sys := range s.Systems() {
		slog.Info("system totals",
			"system", sys.Name,
			"live", sys.Group.Count(),
			"capacity", sys.Group.Capacity(),
			"totals", sys.Group.Totals(),
		)
	}
	if *snapshotAtEnd {
		s.SaveSnapshots()
	}
	slog.Info("max ticks reached", "tick", s.Tick(), "elapsed", time.Since(start).String())
}
