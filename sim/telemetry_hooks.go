package sim

import (
	"log/slog"

	"github.com/pthm-cable/plume/telemetry"
)

// flushTelemetry flushes every group whose stats window ended this tick.
// Perf stats are written once per flush round.
func (s *Sim) flushTelemetry() {
	flushed := false
	var windowEnd int32
	for _, gt := range s.groups {
		if !gt.collector.ShouldFlush(s.tick) {
			continue
		}
		gt.sample = telemetry.SampleGroup(gt.group, gt.sample)
		stats := gt.collector.Flush(s.tick, gt.sample)
		flushed = true
		windowEnd = stats.WindowEndTick

		// Call stats callback if provided
		if s.statsCallback != nil {
			s.statsCallback(stats)
		}

		// Log stats if enabled (console output)
		if s.logStats {
			stats.LogStats()
		}

		// Write to CSV if output manager is enabled
		if err := s.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
	}
	if !flushed {
		return
	}

	perfStats := s.perfCollector.Stats()
	if s.logStats {
		perfStats.LogStats()
	}
	if err := s.outputManager.WritePerf(perfStats, windowEnd); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	s.windows++
	if every := s.cfg.Telemetry.SnapshotEvery; every > 0 && s.windows%every == 0 {
		s.SaveSnapshots()
	}
}

// SaveSnapshots writes a JSON snapshot of every group. Snapshots go to the
// output directory when one is set, otherwise to the snapshot directory.
// Returns the paths written.
func (s *Sim) SaveSnapshots() []string {
	var paths []string
	for _, gt := range s.groups {
		snap := telemetry.TakeSnapshot(gt.group, s.tick, s.Time())

		var path string
		var err error
		switch {
		case s.outputManager != nil:
			path, err = s.outputManager.WriteSnapshot(snap)
		case s.snapshotDir != "":
			path, err = telemetry.SaveSnapshot(snap, s.snapshotDir)
		default:
			return paths
		}
		if err != nil {
			slog.Error("failed to save snapshot", "system", gt.name, "error", err)
			continue
		}
		slog.Info("snapshot saved", "path", path, "tick", s.tick)
		paths = append(paths, path)
	}
	return paths
}
